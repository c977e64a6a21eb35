package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/blackjackserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error      { return nil }
func (m *MockConnection) SendJSON(msgID uint16, v interface{}) error { return nil }
func (m *MockConnection) Close() error                              { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                      { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)       {}
func (m *MockConnection) ReadPacket() (*network.Packet, error)      { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByUserID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.SetUserID(100)

	sess2 := NewSession("session2", &MockConnection{})
	sess2.SetUserID(200)

	sess3 := NewSession("session3", &MockConnection{})
	sess3.SetUserID(100)

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := len(manager.GetByUserID(100)); got != 2 {
		t.Errorf("Expected 2 sessions for UserID 100, got %d", got)
	}
	if got := len(manager.GetByUserID(200)); got != 1 {
		t.Errorf("Expected 1 session for UserID 200, got %d", got)
	}
	if got := len(manager.GetByUserID(300)); got != 0 {
		t.Errorf("Expected 0 sessions for UserID 300, got %d", got)
	}
}

func TestSession_RoomBinding(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	if sess.RoomID() != "" {
		t.Error("A fresh session is not in a room")
	}

	sess.SetRoomID("room-1")
	if sess.RoomID() != "room-1" {
		t.Errorf("Expected room-1, got %s", sess.RoomID())
	}

	sess.SetRoomID("")
	if sess.RoomID() != "" {
		t.Error("Clearing the room binding should stick")
	}
}
