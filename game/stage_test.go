package game

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStageRoundTrip(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stages := []Stage{
		NotStarted{},
		Init{},
		Setup{},
		Betting{Deadline: deadline, Bets: map[int64]int64{7: 50, 9: 100}},
		Dealing{},
		PlayerAction{Deadline: deadline, PlayerIndex: 1, HandIndex: 0},
		FinishRound{},
		Teardown{},
	}

	for _, stage := range stages {
		data, err := MarshalStage(stage)
		if err != nil {
			t.Fatalf("MarshalStage(%s) failed: %v", stage.StageType(), err)
		}
		decoded, err := UnmarshalStage(data)
		if err != nil {
			t.Fatalf("UnmarshalStage(%s) failed: %v", stage.StageType(), err)
		}
		if decoded.StageType() != stage.StageType() {
			t.Errorf("Round trip changed type: %s -> %s", stage.StageType(), decoded.StageType())
		}
	}
}

func TestStageRoundTripPreservesPayload(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	data, err := MarshalStage(Betting{Deadline: deadline, Bets: map[int64]int64{7: 50}})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalStage(data)
	if err != nil {
		t.Fatal(err)
	}
	betting, ok := decoded.(Betting)
	if !ok {
		t.Fatalf("Expected Betting, got %T", decoded)
	}
	if !betting.Deadline.Equal(deadline) {
		t.Errorf("Deadline changed: %v", betting.Deadline)
	}
	if betting.Bets[7] != 50 {
		t.Errorf("Bets changed: %v", betting.Bets)
	}

	data, err = MarshalStage(PlayerAction{Deadline: deadline, PlayerIndex: 2, HandIndex: 1})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err = UnmarshalStage(data)
	if err != nil {
		t.Fatal(err)
	}
	turn, ok := decoded.(PlayerAction)
	if !ok {
		t.Fatalf("Expected PlayerAction, got %T", decoded)
	}
	if turn.PlayerIndex != 2 || turn.HandIndex != 1 {
		t.Errorf("Pointer changed: %d/%d", turn.PlayerIndex, turn.HandIndex)
	}
}

func TestStageDiscriminatorAtRoot(t *testing.T) {
	data, err := MarshalStage(Betting{Bets: map[int64]int64{}})
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if string(env["type"]) != `"betting"` {
		t.Errorf("Expected root discriminator \"betting\", got %s", env["type"])
	}
	if _, ok := env["bets"]; !ok {
		t.Error("Betting payload should be flattened at the root")
	}
	if string(env["bets"]) != `{}` {
		t.Errorf("A fresh window serializes its empty bets map, got %s", env["bets"])
	}
}

func TestOnlyBettingCarriesTheBetsField(t *testing.T) {
	for _, stage := range []Stage{NotStarted{}, Init{}, Setup{}, Dealing{}, FinishRound{}, Teardown{}} {
		data, err := MarshalStage(stage)
		if err != nil {
			t.Fatal(err)
		}
		var env map[string]json.RawMessage
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if _, ok := env["bets"]; ok {
			t.Errorf("%s should not carry a bets field: %s", stage.StageType(), data)
		}
	}
}

func TestUnmarshalStageUnknownType(t *testing.T) {
	_, err := UnmarshalStage([]byte(`{"type":"shoeChange"}`))
	if err == nil {
		t.Fatal("Expected error for unknown discriminator")
	}
	if !strings.Contains(err.Error(), "shoeChange") {
		t.Errorf("Error should name the bad discriminator: %v", err)
	}
}

func TestMarshalStageEmptyBets(t *testing.T) {
	data, err := MarshalStage(Betting{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalStage(data)
	if err != nil {
		t.Fatal(err)
	}
	betting := decoded.(Betting)
	if betting.Bets == nil {
		t.Error("Bets map should never round trip as nil")
	}
}

func TestDeadlineOf(t *testing.T) {
	deadline := time.Now()
	if _, ok := DeadlineOf(Betting{Deadline: deadline}); !ok {
		t.Error("Betting carries a deadline")
	}
	if _, ok := DeadlineOf(PlayerAction{Deadline: deadline}); !ok {
		t.Error("PlayerAction carries a deadline")
	}
	if _, ok := DeadlineOf(Dealing{}); ok {
		t.Error("Dealing carries no deadline")
	}
}
