// network/messages.go
package network

// 消息ID定义
const (
	MsgTypeHeartbeat uint16 = 1
	MsgTypeLogin     uint16 = 2

	MsgTypeCreateRoom uint16 = 101
	MsgTypeJoinRoom   uint16 = 102
	MsgTypeLeaveRoom  uint16 = 103
	MsgTypeChat       uint16 = 104
	MsgTypeRoomState  uint16 = 105

	MsgTypeGameAction uint16 = 201

	MsgTypeEvent uint16 = 301
	MsgTypeError uint16 = 401
)

type LoginRequest struct {
	UserID int64 `json:"userId"`
}

type CreateRoomRequest struct {
	GameMode string `json:"gameMode,omitempty"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type GameActionRequest struct {
	Action string `json:"action"`
	Amount int64  `json:"amount,omitempty"`
}

// RoomStateResponse is the re-sync snapshot a client requests after
// connecting or falling behind: the persisted stage plus the seats.
type RoomStateResponse struct {
	RoomID  string      `json:"roomId"`
	HostID  int64       `json:"hostId"`
	Stage   interface{} `json:"stage"`
	Players interface{} `json:"players"`
}

// ErrorResponse carries the error class so clients can distinguish a
// rejected move from a lost race or a server fault.
type ErrorResponse struct {
	Code    string `json:"code"` // badRequest/notFound/conflict/internal
	Message string `json:"message"`
}
