// game/stage.go
package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageType 表示房间当前所处的阶段
type StageType string

const (
	StageNotStarted   StageType = "notStarted"
	StageInit         StageType = "init"
	StageSetup        StageType = "setup"
	StageBetting      StageType = "betting"
	StageDealing      StageType = "dealing"
	StagePlayerAction StageType = "playerAction"
	StageFinishRound  StageType = "finishRound"
	StageTeardown     StageType = "teardown"
)

func (t StageType) String() string {
	return string(t)
}

// Stage is the single tagged-variant value representing exactly where
// a room's round currently is. Exactly one variant is active per room
// at a time; the variant payload is the only durable state carried
// between transitions besides the hands/players rows.
type Stage interface {
	StageType() StageType
}

type NotStarted struct{}

func (NotStarted) StageType() StageType { return StageNotStarted }

type Init struct{}

func (Init) StageType() StageType { return StageInit }

type Setup struct{}

func (Setup) StageType() StageType { return StageSetup }

// Betting holds the open betting window. Bets maps userId to the
// recorded wager; the deadline is the instant after which the stage
// must auto-advance absent player input.
type Betting struct {
	Deadline time.Time       `json:"deadline"`
	Bets     map[int64]int64 `json:"bets"`
}

func (Betting) StageType() StageType { return StageBetting }

type Dealing struct{}

func (Dealing) StageType() StageType { return StageDealing }

// PlayerAction points at the hand whose turn it is.
type PlayerAction struct {
	Deadline    time.Time `json:"deadline"`
	PlayerIndex int       `json:"playerIndex"`
	HandIndex   int       `json:"handIndex"`
}

func (PlayerAction) StageType() StageType { return StagePlayerAction }

type FinishRound struct{}

func (FinishRound) StageType() StageType { return StageFinishRound }

type Teardown struct{}

func (Teardown) StageType() StageType { return StageTeardown }

// stageEnvelope is the wire form: a flat record whose root carries the
// stage discriminator. External consumers parse the discriminator to
// pick a payload schema, so the field names here are load-bearing.
type stageEnvelope struct {
	Type        StageType        `json:"type"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Bets        *map[int64]int64 `json:"bets,omitempty"`
	PlayerIndex *int             `json:"playerIndex,omitempty"`
	HandIndex   *int             `json:"handIndex,omitempty"`
}

// MarshalStage serializes a stage to its discriminator-tagged JSON
// form.
func MarshalStage(s Stage) ([]byte, error) {
	env := stageEnvelope{Type: s.StageType()}
	switch v := s.(type) {
	case Betting:
		deadline := v.Deadline
		env.Deadline = &deadline
		// A freshly opened window still carries "bets":{} on the wire;
		// consumers key off the field being present.
		bets := v.Bets
		if bets == nil {
			bets = map[int64]int64{}
		}
		env.Bets = &bets
	case PlayerAction:
		deadline := v.Deadline
		playerIndex, handIndex := v.PlayerIndex, v.HandIndex
		env.Deadline = &deadline
		env.PlayerIndex = &playerIndex
		env.HandIndex = &handIndex
	case NotStarted, Init, Setup, Dealing, FinishRound, Teardown:
	default:
		return nil, fmt.Errorf("unknown stage type %T", s)
	}
	return json.Marshal(env)
}

// UnmarshalStage reverses MarshalStage. The round trip preserves the
// variant and payload for all eight stage types.
func UnmarshalStage(data []byte) (Stage, error) {
	var env stageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case StageNotStarted:
		return NotStarted{}, nil
	case StageInit:
		return Init{}, nil
	case StageSetup:
		return Setup{}, nil
	case StageBetting:
		stage := Betting{Bets: map[int64]int64{}}
		if env.Bets != nil {
			stage.Bets = *env.Bets
		}
		if env.Deadline != nil {
			stage.Deadline = *env.Deadline
		}
		return stage, nil
	case StageDealing:
		return Dealing{}, nil
	case StagePlayerAction:
		stage := PlayerAction{}
		if env.Deadline != nil {
			stage.Deadline = *env.Deadline
		}
		if env.PlayerIndex != nil {
			stage.PlayerIndex = *env.PlayerIndex
		}
		if env.HandIndex != nil {
			stage.HandIndex = *env.HandIndex
		}
		return stage, nil
	case StageFinishRound:
		return FinishRound{}, nil
	case StageTeardown:
		return Teardown{}, nil
	default:
		return nil, fmt.Errorf("unknown stage discriminator %q", env.Type)
	}
}

// DeadlineOf returns the stage's deadline for deadline-bearing stages.
func DeadlineOf(s Stage) (time.Time, bool) {
	switch v := s.(type) {
	case Betting:
		return v.Deadline, true
	case PlayerAction:
		return v.Deadline, true
	default:
		return time.Time{}, false
	}
}
