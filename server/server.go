// server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/blackjackserver/broadcast"
	"github.com/wfunc/blackjackserver/game"
	"github.com/wfunc/blackjackserver/logger"
	"github.com/wfunc/blackjackserver/monitor"
	"github.com/wfunc/blackjackserver/network"
	blackjack_rpc "github.com/wfunc/blackjackserver/rpc"
	"github.com/wfunc/blackjackserver/services"
	"github.com/wfunc/blackjackserver/session"
)

const heartbeatInterval = 30 * time.Second

// GameServer is the websocket front door. It owns connection
// lifecycle and message dispatch; all game semantics live in the
// engine and the room service.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	roomService    *services.RoomService
	engine         *game.Engine
	broadcaster    *broadcast.RoomBroadcaster
	rpcServer      *blackjack_rpc.Server
	monitor        *monitor.Monitor

	mutex       sync.Mutex
	subscribers map[string]*broadcast.Subscriber // session ID -> room subscription

	shutdownChan chan struct{}
}

func NewGameServer(addr, rpcAddr string, roomService *services.RoomService, engine *game.Engine, broadcaster *broadcast.RoomBroadcaster, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           addr,
		sessionManager: session.NewManager(),
		roomService:    roomService,
		engine:         engine,
		broadcaster:    broadcaster,
		monitor:        mon,
		subscribers:    make(map[string]*broadcast.Subscriber),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	rpcServer, err := blackjack_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	rpc.Register(blackjack_rpc.NewAdminService(roomService))

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.detachFromRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		started := time.Now()
		defer func() { s.monitor.ObserveMessageLatency(time.Since(started)) }()
	}

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
	case network.MsgTypeLogin:
		s.handleLogin(sess, packet)
	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.handleLeaveRoom(sess)
	case network.MsgTypeChat:
		s.handleChat(sess, packet)
	case network.MsgTypeRoomState:
		s.handleRoomState(sess)
	case network.MsgTypeGameAction:
		s.handleGameAction(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleLogin(sess *session.Session, packet *network.Packet) {
	var req network.LoginRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.UserID <= 0 {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	sess.SetUserID(req.UserID)
	sess.SendJSON(network.MsgTypeLogin, map[string]int64{"userId": req.UserID})
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) {
	if sess.UserID() == 0 {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	var req network.CreateRoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			s.sendError(sess, game.ErrBadRequest)
			return
		}
	}

	room, err := s.roomService.CreateRoom(sess.UserID(), req.GameMode)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.attachToRoom(sess, room.ID)
	sess.SendJSON(network.MsgTypeCreateRoom, network.CreateRoomResponse{RoomID: room.ID})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	if sess.UserID() == 0 {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	var req network.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.RoomID == "" {
		s.sendError(sess, game.ErrBadRequest)
		return
	}

	if _, err := s.roomService.JoinRoom(req.RoomID, sess.UserID()); err != nil {
		s.sendError(sess, err)
		return
	}
	s.attachToRoom(sess, req.RoomID)
	s.handleRoomState(sess)
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		return
	}
	if err := s.roomService.LeaveRoom(roomID, sess.UserID()); err != nil {
		s.sendError(sess, err)
		return
	}
	s.detachFromRoom(sess)
}

func (s *GameServer) handleChat(sess *session.Session, packet *network.Packet) {
	var req network.ChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	if err := s.roomService.Chat(sess.RoomID(), sess.UserID(), req.Message); err != nil {
		s.sendError(sess, err)
	}
}

func (s *GameServer) handleRoomState(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	room, players, err := s.roomService.RoomState(roomID)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	sess.SendJSON(network.MsgTypeRoomState, network.RoomStateResponse{
		RoomID:  room.ID,
		HostID:  room.HostID,
		Stage:   json.RawMessage(room.State),
		Players: players,
	})
}

func (s *GameServer) handleGameAction(sess *session.Session, packet *network.Packet) {
	roomID := sess.RoomID()
	if roomID == "" {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	var req network.GameActionRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, game.ErrBadRequest)
		return
	}
	err := s.engine.PerformAction(context.Background(), roomID, sess.UserID(), game.Action{
		Name:   req.Action,
		Amount: req.Amount,
	})
	if err != nil {
		s.sendError(sess, err)
	}
}

// attachToRoom binds the session to a room's event stream. Each event
// is forwarded as one MsgTypeEvent packet; the pump stops when the
// subscription closes.
func (s *GameServer) attachToRoom(sess *session.Session, roomID string) {
	s.detachFromRoom(sess)

	sub := s.broadcaster.Subscribe(roomID)
	s.mutex.Lock()
	s.subscribers[sess.GetID()] = sub
	s.mutex.Unlock()
	sess.SetRoomID(roomID)

	go func() {
		for event := range sub.Events() {
			if err := sess.SendJSON(network.MsgTypeEvent, event); err != nil {
				return
			}
		}
	}()
}

func (s *GameServer) detachFromRoom(sess *session.Session) {
	s.mutex.Lock()
	sub := s.subscribers[sess.GetID()]
	delete(s.subscribers, sess.GetID())
	s.mutex.Unlock()
	if sub != nil {
		s.broadcaster.Unsubscribe(sub)
	}
	sess.SetRoomID("")
}

// sendError maps the engine's error classes onto the wire codes.
func (s *GameServer) sendError(sess *session.Session, err error) {
	code := "internal"
	switch {
	case errors.Is(err, game.ErrBadRequest):
		code = "badRequest"
	case errors.Is(err, game.ErrNotFound):
		code = "notFound"
	case errors.Is(err, game.ErrConflict):
		code = "conflict"
	}
	if code == "internal" {
		logger.Log.Errorf("Internal error for session %s: %v", sess.GetID(), err)
	}
	sess.SendJSON(network.MsgTypeError, network.ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}
