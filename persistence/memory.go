// persistence/memory.go
package persistence

import (
	"sort"
	"sync"

	"github.com/wfunc/blackjackserver/deck"
	"github.com/wfunc/blackjackserver/models"
)

// MemoryStore is an in-memory Store with the same concurrency contract
// as the PostgreSQL implementation. It backs unit tests and local runs
// without a database.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	players map[string]map[int64]*models.RoomPlayer
	hands   map[string][]*models.Hand
	records []models.GameRecord
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]*models.Room),
		players: make(map[string]map[int64]*models.RoomPlayer),
		hands:   make(map[string][]*models.Hand),
		nextID:  1,
	}
}

func copyRoom(room *models.Room) *models.Room {
	clone := *room
	clone.State = append([]byte(nil), room.State...)
	return &clone
}

func copyPlayer(player *models.RoomPlayer) *models.RoomPlayer {
	clone := *player
	return &clone
}

func copyHand(hand *models.Hand) models.Hand {
	clone := *hand
	clone.Cards = append([]deck.Card(nil), hand.Cards...)
	return clone
}

func (s *MemoryStore) CreateRoom(room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (s *MemoryStore) GetRoom(roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	return copyRoom(room), nil
}

func (s *MemoryStore) GetStageAndVersion(roomID string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return nil, 0, ErrRecordNotFound
	}
	return append([]byte(nil), room.State...), room.Version, nil
}

func (s *MemoryStore) WriteStageIfVersionMatches(roomID string, newState []byte, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return false, ErrRecordNotFound
	}
	if room.Version != expectedVersion {
		return false, nil
	}
	room.State = append([]byte(nil), newState...)
	room.Version = expectedVersion + 1
	return true, nil
}

func (s *MemoryStore) SetDeckID(roomID, deckID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	room.DeckID = deckID
	return nil
}

func (s *MemoryStore) SetHost(roomID string, hostID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	room.HostID = hostID
	return nil
}

func (s *MemoryStore) SetRoomEnded(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	room.Active = false
	room.Ended = true
	return nil
}

func (s *MemoryStore) ListActiveRoomIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, room := range s.rooms {
		if room.Active && !room.Ended {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) CreatePlayer(player *models.RoomPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seats, exists := s.players[player.RoomID]
	if !exists {
		seats = make(map[int64]*models.RoomPlayer)
		s.players[player.RoomID] = seats
	}
	seats[player.UserID] = copyPlayer(player)
	return nil
}

func (s *MemoryStore) GetPlayer(roomID string, userID int64) (*models.RoomPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, exists := s.players[roomID][userID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	return copyPlayer(player), nil
}

func (s *MemoryStore) AdjustPlayerBalance(roomID string, userID int64, delta int64) (*models.RoomPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, exists := s.players[roomID][userID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	if delta < 0 && player.Balance+delta < 0 {
		return nil, ErrInsufficientBalance
	}
	player.Balance += delta
	player.BalanceDelta += delta
	return copyPlayer(player), nil
}

func (s *MemoryStore) ResetBalances(roomID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, player := range s.players[roomID] {
		player.Balance = balance
	}
	return nil
}

func (s *MemoryStore) UpdatePlayerStatus(roomID string, userID int64, status models.PlayerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, exists := s.players[roomID][userID]
	if !exists {
		return ErrRecordNotFound
	}
	player.Status = status
	return nil
}

func (s *MemoryStore) ListActivePlayers(roomID string) ([]models.RoomPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var players []models.RoomPlayer
	for _, player := range s.players[roomID] {
		if player.Status == models.PlayerActive {
			players = append(players, *copyPlayer(player))
		}
	}
	// Deterministic ordering, as the SQL store sorts by user id.
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	return players, nil
}

func (s *MemoryStore) CreateHand(hand *models.Hand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Same dedup rule as the SQL store's unique index.
	for _, existing := range s.hands[hand.RoomID] {
		if existing.UserID == hand.UserID && existing.HandIndex == hand.HandIndex {
			hand.ID = existing.ID
			return nil
		}
	}
	clone := copyHand(hand)
	clone.ID = s.nextID
	s.nextID++
	hand.ID = clone.ID
	s.hands[hand.RoomID] = append(s.hands[hand.RoomID], &clone)
	return nil
}

func (s *MemoryStore) UpdateHand(hand *models.Hand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.hands[hand.RoomID] {
		if existing.ID == hand.ID {
			existing.Bet = hand.Bet
			existing.Cards = append([]deck.Card(nil), hand.Cards...)
			return nil
		}
	}
	return ErrRecordNotFound
}

func (s *MemoryStore) ListHandsForRoom(roomID string) ([]models.Hand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hands := make([]models.Hand, 0, len(s.hands[roomID]))
	for _, hand := range s.hands[roomID] {
		hands = append(hands, copyHand(hand))
	}
	sort.Slice(hands, func(i, j int) bool {
		if hands[i].Ord != hands[j].Ord {
			return hands[i].Ord < hands[j].Ord
		}
		return hands[i].HandIndex < hands[j].HandIndex
	})
	return hands, nil
}

func (s *MemoryStore) DeleteHands(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hands, roomID)
	return nil
}

func (s *MemoryStore) SaveGameRecord(record *models.GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	clone.Players = append([]models.PlayerOutcome(nil), record.Players...)
	s.records = append(s.records, clone)
	return nil
}

// Records returns the saved game records; test helper.
func (s *MemoryStore) Records() []models.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GameRecord(nil), s.records...)
}

func (s *MemoryStore) GetPlayerStats(userID int64) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, wins, losses, net := 0, 0, 0, int64(0)
	for _, record := range s.records {
		for _, outcome := range record.Players {
			if outcome.UserID != userID {
				continue
			}
			total++
			switch outcome.Outcome {
			case "win", "blackjack":
				wins++
			case "lose":
				losses++
			}
			net += outcome.Net
		}
	}
	return map[string]interface{}{
		"total_rounds": total,
		"wins":         wins,
		"losses":       losses,
		"net":          net,
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
