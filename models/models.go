// models/models.go
package models

import (
	"encoding/json"
	"time"

	"github.com/wfunc/blackjackserver/deck"
)

// DealerUserID is the reserved seat for the house hand.
const DealerUserID int64 = 0

// PlayerStatus tracks a seat's lifecycle within a room.
type PlayerStatus string

const (
	PlayerActive   PlayerStatus = "active"
	PlayerAway     PlayerStatus = "away"
	PlayerLeft     PlayerStatus = "left"
	PlayerInactive PlayerStatus = "inactive"
)

// RoomPlayer is a user's seat in a room. Balance is the chip stack
// within this room, distinct from any global wallet; BalanceDelta is
// the net change this session, for auditing.
type RoomPlayer struct {
	UserID       int64        `json:"userId"`
	RoomID       string       `json:"roomId"`
	Balance      int64        `json:"balance"`
	BalanceDelta int64        `json:"balanceDelta"`
	Status       PlayerStatus `json:"status"`
}

// Hand is one dealt set of cards for the current round. Ord is the
// turn order (dealer uses -1), HandIndex supports split hands.
type Hand struct {
	ID        int64       `json:"id"`
	RoomID    string      `json:"roomId"`
	UserID    int64       `json:"userId"`
	Ord       int         `json:"ord"`
	HandIndex int         `json:"handIndex"`
	Bet       int64       `json:"bet"`
	Cards     []deck.Card `json:"cards"`
}

// GameConfig is immutable per room; the engine only reads it.
// Time limits are carried as whole seconds so the serialized config
// stays readable to external consumers.
type GameConfig struct {
	StartingBalance int64   `json:"startingBalance"`
	MinBet          int64   `json:"minBet"`
	BettingSeconds  int     `json:"bettingSeconds"`
	TurnSeconds     int     `json:"turnSeconds"`
	BlackjackPayout float64 `json:"blackjackPayout"`
	ResetBalance    bool    `json:"resetBalance"`
}

func (c GameConfig) BettingLimit() time.Duration {
	return time.Duration(c.BettingSeconds) * time.Second
}

func (c GameConfig) TurnLimit() time.Duration {
	return time.Duration(c.TurnSeconds) * time.Second
}

// Room is the engine's view of a table. State is the serialized
// current stage, opaque to storage; Version is the optimistic
// concurrency token guarding it.
type Room struct {
	ID         string          `json:"id"`
	HostID     int64           `json:"hostId"`
	GameMode   string          `json:"gameMode"`
	DeckID     string          `json:"deckId"`
	Active     bool            `json:"active"`
	Ended      bool            `json:"ended"`
	MinPlayers int             `json:"minPlayers"`
	MaxPlayers int             `json:"maxPlayers"`
	Config     GameConfig      `json:"config"`
	State      json.RawMessage `json:"state"`
	Version    int64           `json:"version"`
}

// PlayerOutcome is one player's result in a finished round.
type PlayerOutcome struct {
	UserID  int64  `json:"userId"`
	Outcome string `json:"outcome"` // win/lose/push/blackjack
	Net     int64  `json:"net"`
}

// GameRecord is the durable trace of one finished round.
type GameRecord struct {
	RoomID    string          `json:"roomId"`
	Players   []PlayerOutcome `json:"players"`
	CreatedAt time.Time       `json:"createdAt"`
}
