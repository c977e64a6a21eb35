// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/blackjackserver/models"
)

// 错误定义
var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store 数据库接口
//
// The room's current stage is stored as a single serialized blob whose
// root object carries the stage discriminator; Version is the explicit
// optimistic-concurrency counter guarding it. Writers must go through
// WriteStageIfVersionMatches so at most one transition per logical
// step ever succeeds.
type Store interface {
	CreateRoom(room *models.Room) error
	GetRoom(roomID string) (*models.Room, error)
	GetStageAndVersion(roomID string) (state []byte, version int64, err error)
	WriteStageIfVersionMatches(roomID string, newState []byte, expectedVersion int64) (bool, error)
	SetDeckID(roomID, deckID string) error
	SetHost(roomID string, hostID int64) error
	SetRoomEnded(roomID string) error
	ListActiveRoomIDs() ([]string, error)

	CreatePlayer(player *models.RoomPlayer) error
	GetPlayer(roomID string, userID int64) (*models.RoomPlayer, error)
	AdjustPlayerBalance(roomID string, userID int64, delta int64) (*models.RoomPlayer, error)
	ResetBalances(roomID string, balance int64) error
	UpdatePlayerStatus(roomID string, userID int64, status models.PlayerStatus) error
	ListActivePlayers(roomID string) ([]models.RoomPlayer, error)

	CreateHand(hand *models.Hand) error
	UpdateHand(hand *models.Hand) error
	ListHandsForRoom(roomID string) ([]models.Hand, error)
	DeleteHands(roomID string) error

	SaveGameRecord(record *models.GameRecord) error
	GetPlayerStats(userID int64) (map[string]interface{}, error)

	Close() error
}
