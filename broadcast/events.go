// broadcast/events.go
package broadcast

import (
	"encoding/json"
)

// EventType discriminates event payloads. Every event carries its type
// explicitly so consumers never need type-based dispatch.
type EventType string

const (
	EventPlayerJoined EventType = "playerJoined"
	EventPlayerLeft   EventType = "playerLeft"
	EventHostChanged  EventType = "hostChanged"
	EventChat         EventType = "chat"
	EventGameState    EventType = "gameState"
	EventPlayerAction EventType = "playerAction"
	EventPlayerReveal EventType = "playerReveal"
	EventDealerReveal EventType = "dealerReveal"
)

func (t EventType) String() string {
	return string(t)
}

// Event is one authored room event. The payload shape is determined by
// Type; all payloads use lowerCamelCase keys.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

type PlayerJoinedPayload struct {
	UserID  int64 `json:"userId"`
	Balance int64 `json:"balance"`
}

type PlayerLeftPayload struct {
	UserID int64 `json:"userId"`
}

type HostChangedPayload struct {
	HostID int64 `json:"hostId"`
}

type ChatPayload struct {
	UserID  int64  `json:"userId"`
	Message string `json:"message"`
}

// GameStatePayload carries the serialized new stage exactly as
// persisted, discriminator included.
type GameStatePayload struct {
	Stage json.RawMessage `json:"stage"`
}

type PlayerActionPayload struct {
	UserID int64  `json:"userId"`
	Action string `json:"action"`
	Amount int64  `json:"amount,omitempty"`
}

// CardView is a card as shown to observers. A face-down card exposes
// no code/suit/value.
type CardView struct {
	Code       string `json:"code,omitempty"`
	Suit       string `json:"suit,omitempty"`
	Value      string `json:"value,omitempty"`
	IsFaceDown bool   `json:"isFaceDown"`
}

type PlayerRevealPayload struct {
	UserID    int64      `json:"userId"`
	HandIndex int        `json:"handIndex"`
	Cards     []CardView `json:"cards"`
	Value     int        `json:"value"`
}

type DealerRevealPayload struct {
	Cards []CardView `json:"cards"`
	Value int        `json:"value,omitempty"`
}
