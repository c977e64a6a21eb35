// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/blackjackserver/deck"
	"github.com/wfunc/blackjackserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoom{},
		&models.GormRoomPlayer{},
		&models.GormHand{},
		&models.GormGameRecord{},
	)
}

// --- Rooms ---

func (s *GormPostgreSQL) CreateRoom(room *models.Room) error {
	configJSON, err := json.Marshal(room.Config)
	if err != nil {
		return err
	}
	row := models.GormRoom{
		RoomID:     room.ID,
		HostID:     room.HostID,
		GameMode:   room.GameMode,
		State:      string(room.State),
		Config:     string(configJSON),
		DeckID:     room.DeckID,
		Active:     true,
		MinPlayers: room.MinPlayers,
		MaxPlayers: room.MaxPlayers,
		Version:    0,
	}
	return s.db.Create(&row).Error
}

func (s *GormPostgreSQL) GetRoom(roomID string) (*models.Room, error) {
	var row models.GormRoom
	if err := s.db.Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return roomFromRow(&row)
}

func roomFromRow(row *models.GormRoom) (*models.Room, error) {
	var config models.GameConfig
	if err := json.Unmarshal([]byte(row.Config), &config); err != nil {
		return nil, fmt.Errorf("decode room config: %w", err)
	}
	return &models.Room{
		ID:         row.RoomID,
		HostID:     row.HostID,
		GameMode:   row.GameMode,
		DeckID:     row.DeckID,
		Active:     row.Active,
		Ended:      row.Ended,
		MinPlayers: row.MinPlayers,
		MaxPlayers: row.MaxPlayers,
		Config:     config,
		State:      json.RawMessage(row.State),
		Version:    row.Version,
	}, nil
}

func (s *GormPostgreSQL) GetStageAndVersion(roomID string) ([]byte, int64, error) {
	var row models.GormRoom
	if err := s.db.Select("state", "version").Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, ErrRecordNotFound
		}
		return nil, 0, err
	}
	return []byte(row.State), row.Version, nil
}

// WriteStageIfVersionMatches is the compare-and-swap write guarding
// stage transitions. It succeeds only when no other writer has bumped
// the version since the caller read it.
func (s *GormPostgreSQL) WriteStageIfVersionMatches(roomID string, newState []byte, expectedVersion int64) (bool, error) {
	result := s.db.Model(&models.GormRoom{}).
		Where("room_id = ? AND version = ?", roomID, expectedVersion).
		Updates(map[string]interface{}{
			"state":   string(newState),
			"version": expectedVersion + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormPostgreSQL) SetDeckID(roomID, deckID string) error {
	result := s.db.Model(&models.GormRoom{}).
		Where("room_id = ?", roomID).
		Update("deck_id", deckID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormPostgreSQL) SetHost(roomID string, hostID int64) error {
	result := s.db.Model(&models.GormRoom{}).
		Where("room_id = ?", roomID).
		Update("host_id", hostID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormPostgreSQL) SetRoomEnded(roomID string) error {
	result := s.db.Model(&models.GormRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{"active": false, "ended": true})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormPostgreSQL) ListActiveRoomIDs() ([]string, error) {
	var ids []string
	err := s.db.Model(&models.GormRoom{}).
		Where("active = ? AND ended = ?", true, false).
		Pluck("room_id", &ids).Error
	return ids, err
}

// --- Players ---

func (s *GormPostgreSQL) CreatePlayer(player *models.RoomPlayer) error {
	row := models.GormRoomPlayer{
		RoomID:       player.RoomID,
		UserID:       player.UserID,
		Balance:      player.Balance,
		BalanceDelta: player.BalanceDelta,
		Status:       string(player.Status),
	}
	return s.db.Create(&row).Error
}

func (s *GormPostgreSQL) GetPlayer(roomID string, userID int64) (*models.RoomPlayer, error) {
	var row models.GormRoomPlayer
	if err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return playerFromRow(&row), nil
}

func playerFromRow(row *models.GormRoomPlayer) *models.RoomPlayer {
	return &models.RoomPlayer{
		UserID:       row.UserID,
		RoomID:       row.RoomID,
		Balance:      row.Balance,
		BalanceDelta: row.BalanceDelta,
		Status:       models.PlayerStatus(row.Status),
	}
}

// AdjustPlayerBalance 更新玩家余额（原子操作）
//
// The balance is never decremented below zero: an insufficient debit
// fails the whole transaction instead of clamping.
func (s *GormPostgreSQL) AdjustPlayerBalance(roomID string, userID int64, delta int64) (*models.RoomPlayer, error) {
	var updated models.GormRoomPlayer
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row models.GormRoomPlayer
		if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrRecordNotFound
			}
			return err
		}

		if delta < 0 && row.Balance+delta < 0 {
			return ErrInsufficientBalance
		}

		if err := tx.Model(&row).Updates(map[string]interface{}{
			"balance":       gorm.Expr("balance + ?", delta),
			"balance_delta": gorm.Expr("balance_delta + ?", delta),
		}).Error; err != nil {
			return err
		}

		return tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return playerFromRow(&updated), nil
}

func (s *GormPostgreSQL) ResetBalances(roomID string, balance int64) error {
	return s.db.Model(&models.GormRoomPlayer{}).
		Where("room_id = ?", roomID).
		Update("balance", balance).Error
}

func (s *GormPostgreSQL) UpdatePlayerStatus(roomID string, userID int64, status models.PlayerStatus) error {
	result := s.db.Model(&models.GormRoomPlayer{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormPostgreSQL) ListActivePlayers(roomID string) ([]models.RoomPlayer, error) {
	var rows []models.GormRoomPlayer
	err := s.db.Where("room_id = ? AND status = ?", roomID, string(models.PlayerActive)).
		Order("user_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	players := make([]models.RoomPlayer, 0, len(rows))
	for i := range rows {
		players = append(players, *playerFromRow(&rows[i]))
	}
	return players, nil
}

// --- Hands ---

// CreateHand seats a player for the round. Racing writers are
// deduplicated by the unique index: the losing insert is a no-op.
func (s *GormPostgreSQL) CreateHand(hand *models.Hand) error {
	cardsJSON, err := json.Marshal(hand.Cards)
	if err != nil {
		return err
	}
	row := models.GormHand{
		RoomID:    hand.RoomID,
		UserID:    hand.UserID,
		Ord:       hand.Ord,
		HandIndex: hand.HandIndex,
		Bet:       hand.Bet,
		Cards:     string(cardsJSON),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return err
	}
	hand.ID = int64(row.ID)
	return nil
}

func (s *GormPostgreSQL) UpdateHand(hand *models.Hand) error {
	cardsJSON, err := json.Marshal(hand.Cards)
	if err != nil {
		return err
	}
	result := s.db.Model(&models.GormHand{}).
		Where("id = ?", hand.ID).
		Updates(map[string]interface{}{
			"bet":   hand.Bet,
			"cards": string(cardsJSON),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormPostgreSQL) ListHandsForRoom(roomID string) ([]models.Hand, error) {
	var rows []models.GormHand
	err := s.db.Where("room_id = ?", roomID).
		Order("ord asc, hand_index asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	hands := make([]models.Hand, 0, len(rows))
	for i := range rows {
		var cards []deck.Card
		if rows[i].Cards != "" {
			if err := json.Unmarshal([]byte(rows[i].Cards), &cards); err != nil {
				return nil, fmt.Errorf("decode hand cards: %w", err)
			}
		}
		hands = append(hands, models.Hand{
			ID:        int64(rows[i].ID),
			RoomID:    rows[i].RoomID,
			UserID:    rows[i].UserID,
			Ord:       rows[i].Ord,
			HandIndex: rows[i].HandIndex,
			Bet:       rows[i].Bet,
			Cards:     cards,
		})
	}
	return hands, nil
}

// DeleteHands hard-deletes the round's rows; a soft delete would
// trip the unique seat index on the next round.
func (s *GormPostgreSQL) DeleteHands(roomID string) error {
	return s.db.Unscoped().Where("room_id = ?", roomID).Delete(&models.GormHand{}).Error
}

// --- Records ---

func (s *GormPostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	playersJSON, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	row := models.GormGameRecord{
		RoomID:  record.RoomID,
		Players: string(playersJSON),
	}
	return s.db.Create(&row).Error
}

// GetPlayerStats 获取玩家统计信息
func (s *GormPostgreSQL) GetPlayerStats(userID int64) (map[string]interface{}, error) {
	var stats map[string]interface{}

	err := s.db.Raw(`
        SELECT
            COUNT(*) as total_rounds,
            SUM(CASE WHEN p->>'outcome' IN ('win', 'blackjack') THEN 1 ELSE 0 END) as wins,
            SUM(CASE WHEN p->>'outcome' = 'lose' THEN 1 ELSE 0 END) as losses,
            COALESCE(SUM((p->>'net')::bigint), 0) as net
        FROM gorm_game_records, jsonb_array_elements(players::jsonb) AS p
        WHERE (p->>'userId')::bigint = ?`,
		userID,
	).Scan(&stats).Error

	return stats, err
}

// Close 关闭数据库连接
func (s *GormPostgreSQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
