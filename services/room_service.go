// services/room_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wfunc/blackjackserver/broadcast"
	"github.com/wfunc/blackjackserver/game"
	"github.com/wfunc/blackjackserver/logger"
	"github.com/wfunc/blackjackserver/models"
	"github.com/wfunc/blackjackserver/persistence"
)

// RoomService owns the room membership lifecycle: creation, seating,
// leaving and host migration. Everything that touches the round
// itself goes through the game engine instead.
type RoomService struct {
	store      persistence.Store
	events     broadcast.Broadcaster
	defaults   models.GameConfig
	minPlayers int
	maxPlayers int
}

func NewRoomService(store persistence.Store, events broadcast.Broadcaster, defaults models.GameConfig, minPlayers, maxPlayers int) *RoomService {
	if minPlayers <= 0 {
		minPlayers = 1
	}
	if maxPlayers < minPlayers {
		maxPlayers = minPlayers
	}
	return &RoomService{
		store:      store,
		events:     events,
		defaults:   defaults,
		minPlayers: minPlayers,
		maxPlayers: maxPlayers,
	}
}

// CreateRoom opens a new table with the creator as host and first
// seated player.
func (s *RoomService) CreateRoom(hostID int64, gameMode string) (*models.Room, error) {
	if gameMode == "" {
		gameMode = "blackjack"
	}
	state, err := game.MarshalStage(game.NotStarted{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}

	room := &models.Room{
		ID:         uuid.New().String(),
		HostID:     hostID,
		GameMode:   gameMode,
		Active:     true,
		MinPlayers: s.minPlayers,
		MaxPlayers: s.maxPlayers,
		Config:     s.defaults,
		State:      state,
	}
	if err := s.store.CreateRoom(room); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	if _, err := s.JoinRoom(room.ID, hostID); err != nil {
		return nil, err
	}
	logger.Log.Infof("User %d created room %s", hostID, room.ID)
	return room, nil
}

// JoinRoom seats a user. A returning player keeps their balance and
// is just flipped back to active.
func (s *RoomService) JoinRoom(roomID string, userID int64) (*models.RoomPlayer, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", game.ErrNotFound, roomID)
		}
		return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	if room.Ended {
		return nil, fmt.Errorf("%w: room %s has ended", game.ErrBadRequest, roomID)
	}

	player, err := s.store.GetPlayer(roomID, userID)
	switch {
	case err == nil:
		if player.Status != models.PlayerActive {
			if err := s.store.UpdatePlayerStatus(roomID, userID, models.PlayerActive); err != nil {
				return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
			}
			player.Status = models.PlayerActive
		}
	case errors.Is(err, persistence.ErrRecordNotFound):
		active, err := s.store.ListActivePlayers(roomID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
		}
		if len(active) >= room.MaxPlayers {
			return nil, fmt.Errorf("%w: room %s is full", game.ErrBadRequest, roomID)
		}
		player = &models.RoomPlayer{
			UserID:  userID,
			RoomID:  roomID,
			Balance: room.Config.StartingBalance,
			Status:  models.PlayerActive,
		}
		if err := s.store.CreatePlayer(player); err != nil {
			return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}

	s.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventPlayerJoined,
		Payload: broadcast.PlayerJoinedPayload{UserID: userID, Balance: player.Balance},
	})
	return player, nil
}

// LeaveRoom unseats a user. The host role migrates to the
// lowest-numbered remaining player; an emptied room is closed.
func (s *RoomService) LeaveRoom(roomID string, userID int64) error {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return fmt.Errorf("%w: room %s", game.ErrNotFound, roomID)
		}
		return fmt.Errorf("%w: %v", game.ErrInternal, err)
	}

	if err := s.store.UpdatePlayerStatus(roomID, userID, models.PlayerLeft); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d is not in room %s", game.ErrNotFound, userID, roomID)
		}
		return fmt.Errorf("%w: %v", game.ErrInternal, err)
	}

	s.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventPlayerLeft,
		Payload: broadcast.PlayerLeftPayload{UserID: userID},
	})

	remaining, err := s.store.ListActivePlayers(roomID)
	if err != nil {
		return fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	if len(remaining) == 0 {
		if err := s.store.SetRoomEnded(roomID); err != nil {
			return fmt.Errorf("%w: %v", game.ErrInternal, err)
		}
		logger.Log.Infof("Room %s closed: last player left", roomID)
		return nil
	}
	if userID == room.HostID {
		newHost := remaining[0].UserID
		if err := s.store.SetHost(roomID, newHost); err != nil {
			logger.Log.Errorf("Failed to persist host change for room %s: %v", roomID, err)
		}
		s.events.Publish(roomID, broadcast.Event{
			Type:    broadcast.EventHostChanged,
			Payload: broadcast.HostChangedPayload{HostID: newHost},
		})
		logger.Log.Infof("Host of room %s migrated to user %d", roomID, newHost)
	}
	return nil
}

// Chat relays a table message through the room's event stream.
func (s *RoomService) Chat(roomID string, userID int64, message string) error {
	if message == "" {
		return fmt.Errorf("%w: empty chat message", game.ErrBadRequest)
	}
	if _, err := s.store.GetPlayer(roomID, userID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d is not in room %s", game.ErrNotFound, userID, roomID)
		}
		return fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	s.events.Publish(roomID, broadcast.Event{
		Type:    broadcast.EventChat,
		Payload: broadcast.ChatPayload{UserID: userID, Message: message},
	})
	return nil
}

// RoomState returns the re-sync snapshot: the room (with its current
// serialized stage) and the seated players.
func (s *RoomService) RoomState(roomID string) (*models.Room, []models.RoomPlayer, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: room %s", game.ErrNotFound, roomID)
		}
		return nil, nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	players, err := s.store.ListActivePlayers(roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	return room, players, nil
}

// PlayerStats aggregates a user's lifetime results across rooms.
func (s *RoomService) PlayerStats(userID int64) (map[string]interface{}, error) {
	stats, err := s.store.GetPlayerStats(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrInternal, err)
	}
	return stats, nil
}
