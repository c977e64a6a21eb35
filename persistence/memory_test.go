package persistence

import (
	"sync"
	"testing"

	"github.com/wfunc/blackjackserver/models"
)

func newTestRoom(t *testing.T, store *MemoryStore) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:     "room-1",
		HostID: 1,
		Active: true,
		State:  []byte(`{"type":"notStarted"}`),
	}
	if err := store.CreateRoom(room); err != nil {
		t.Fatal(err)
	}
	return room
}

func TestWriteStageIfVersionMatches(t *testing.T) {
	store := NewMemoryStore()
	newTestRoom(t, store)

	ok, err := store.WriteStageIfVersionMatches("room-1", []byte(`{"type":"init"}`), 0)
	if err != nil || !ok {
		t.Fatalf("First write should succeed: ok=%v err=%v", ok, err)
	}

	// Stale version loses.
	ok, err = store.WriteStageIfVersionMatches("room-1", []byte(`{"type":"setup"}`), 0)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Stale write must be rejected")
	}

	state, version, err := store.GetStageAndVersion("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(state) != `{"type":"init"}` {
		t.Errorf("State corrupted by stale write: %s", state)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}
}

func TestConcurrentCASWritersOneWins(t *testing.T) {
	store := NewMemoryStore()
	newTestRoom(t, store)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.WriteStageIfVersionMatches("room-1", []byte(`{"type":"init"}`), 0)
			if err == nil && ok {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("Exactly one writer should win the version, got %d", count)
	}
}

func TestAdjustPlayerBalance(t *testing.T) {
	store := NewMemoryStore()
	player := &models.RoomPlayer{UserID: 7, RoomID: "room-1", Balance: 100, Status: models.PlayerActive}
	if err := store.CreatePlayer(player); err != nil {
		t.Fatal(err)
	}

	updated, err := store.AdjustPlayerBalance("room-1", 7, -40)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Balance != 60 {
		t.Errorf("Expected balance 60, got %d", updated.Balance)
	}
	if updated.BalanceDelta != -40 {
		t.Errorf("Expected delta -40, got %d", updated.BalanceDelta)
	}

	if _, err := store.AdjustPlayerBalance("room-1", 7, -100); err != ErrInsufficientBalance {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	after, err := store.GetPlayer("room-1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if after.Balance != 60 {
		t.Errorf("Rejected debit must not change the balance: %d", after.Balance)
	}
}

func TestConcurrentBalanceAdjustments(t *testing.T) {
	store := NewMemoryStore()
	player := &models.RoomPlayer{UserID: 7, RoomID: "room-1", Balance: 1000, Status: models.PlayerActive}
	if err := store.CreatePlayer(player); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AdjustPlayerBalance("room-1", 7, -10); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	after, err := store.GetPlayer("room-1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if after.Balance != 0 {
		t.Errorf("Expected balance 0 after 100x -10, got %d", after.Balance)
	}
}

func TestCreateHandDeduplicatesSeats(t *testing.T) {
	store := NewMemoryStore()
	first := &models.Hand{RoomID: "room-1", UserID: 7, Ord: 0, HandIndex: 0, Bet: 50}
	if err := store.CreateHand(first); err != nil {
		t.Fatal(err)
	}
	duplicate := &models.Hand{RoomID: "room-1", UserID: 7, Ord: 0, HandIndex: 0, Bet: 50}
	if err := store.CreateHand(duplicate); err != nil {
		t.Fatal(err)
	}
	if duplicate.ID != first.ID {
		t.Errorf("Duplicate create should resolve to the existing row")
	}

	hands, err := store.ListHandsForRoom("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hands) != 1 {
		t.Fatalf("Expected 1 hand, got %d", len(hands))
	}
}

func TestListHandsOrdering(t *testing.T) {
	store := NewMemoryStore()
	for _, hand := range []*models.Hand{
		{RoomID: "room-1", UserID: 9, Ord: 1},
		{RoomID: "room-1", UserID: 0, Ord: -1},
		{RoomID: "room-1", UserID: 7, Ord: 0},
	} {
		if err := store.CreateHand(hand); err != nil {
			t.Fatal(err)
		}
	}

	hands, err := store.ListHandsForRoom("room-1")
	if err != nil {
		t.Fatal(err)
	}
	ords := []int{hands[0].Ord, hands[1].Ord, hands[2].Ord}
	if ords[0] != -1 || ords[1] != 0 || ords[2] != 1 {
		t.Errorf("Hands not ordered by ord: %v", ords)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	newTestRoom(t, store)

	room, err := store.GetRoom("room-1")
	if err != nil {
		t.Fatal(err)
	}
	room.State[2] = 'X'

	fresh, err := store.GetRoom("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(fresh.State) != `{"type":"notStarted"}` {
		t.Error("Mutating a returned room must not affect the store")
	}
}

func TestPlayerStatsAggregation(t *testing.T) {
	store := NewMemoryStore()
	records := []*models.GameRecord{
		{RoomID: "room-1", Players: []models.PlayerOutcome{{UserID: 7, Outcome: "win", Net: 100}}},
		{RoomID: "room-1", Players: []models.PlayerOutcome{{UserID: 7, Outcome: "lose", Net: -50}}},
		{RoomID: "room-2", Players: []models.PlayerOutcome{{UserID: 7, Outcome: "blackjack", Net: 150}, {UserID: 8, Outcome: "lose", Net: -50}}},
	}
	for _, record := range records {
		if err := store.SaveGameRecord(record); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.GetPlayerStats(7)
	if err != nil {
		t.Fatal(err)
	}
	if stats["total_rounds"] != 3 || stats["wins"] != 2 || stats["losses"] != 1 || stats["net"] != int64(200) {
		t.Errorf("Unexpected stats: %v", stats)
	}
}
