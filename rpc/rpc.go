// rpc/rpc.go
package rpc

import (
	"encoding/json"
	"net"
	"net/rpc"

	"github.com/wfunc/blackjackserver/logger"
	"github.com/wfunc/blackjackserver/services"
)

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins serving RPC requests. It blocks until Stop closes the
// listener.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operational queries over net/rpc: room
// inspection and lifetime player stats. Methods follow the net/rpc
// contract (exported args, pointer reply, error return).
type AdminService struct {
	rooms *services.RoomService
}

func NewAdminService(rooms *services.RoomService) *AdminService {
	return &AdminService{rooms: rooms}
}

type RoomStateArgs struct {
	RoomID string
}

type RoomStateReply struct {
	HostID  int64
	Stage   json.RawMessage
	Players []byte
}

func (a *AdminService) GetRoomState(args *RoomStateArgs, reply *RoomStateReply) error {
	room, players, err := a.rooms.RoomState(args.RoomID)
	if err != nil {
		return err
	}
	playersJSON, err := json.Marshal(players)
	if err != nil {
		return err
	}
	reply.HostID = room.HostID
	reply.Stage = room.State
	reply.Players = playersJSON
	return nil
}

type PlayerStatsArgs struct {
	UserID int64
}

type PlayerStatsReply struct {
	Stats map[string]interface{}
}

func (a *AdminService) GetPlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	stats, err := a.rooms.PlayerStats(args.UserID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}
