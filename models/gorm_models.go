// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormRoom 房间模型
type GormRoom struct {
	gorm.Model
	RoomID     string `gorm:"uniqueIndex;not null"`
	HostID     int64  `gorm:"not null"`
	GameMode   string `gorm:"not null"`
	State      string `gorm:"type:jsonb;not null"`
	Config     string `gorm:"type:jsonb;not null"`
	DeckID     string
	Active     bool  `gorm:"default:true"`
	Ended      bool  `gorm:"default:false"`
	MinPlayers int   `gorm:"default:1"`
	MaxPlayers int   `gorm:"default:6"`
	Version    int64 `gorm:"not null;default:0"`
}

// GormRoomPlayer 座位模型
type GormRoomPlayer struct {
	gorm.Model
	RoomID       string `gorm:"uniqueIndex:idx_room_user;not null"`
	UserID       int64  `gorm:"uniqueIndex:idx_room_user;not null"`
	Balance      int64  `gorm:"not null"`
	BalanceDelta int64  `gorm:"default:0"`
	Status       string `gorm:"not null"`
}

// GormHand 手牌模型
//
// One row per seat per round; the unique index keeps racing
// round-closers from seating the same player twice.
type GormHand struct {
	gorm.Model
	RoomID    string `gorm:"uniqueIndex:idx_room_user_hand;not null"`
	UserID    int64  `gorm:"uniqueIndex:idx_room_user_hand;not null"`
	Ord       int    `gorm:"not null"`
	HandIndex int    `gorm:"uniqueIndex:idx_room_user_hand;default:0"`
	Bet       int64  `gorm:"default:0"`
	Cards     string `gorm:"type:jsonb"`
}

// GormGameRecord 对局记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID  string `gorm:"index;not null"`
	Players string `gorm:"type:jsonb;not null"`
}
