package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeLogin      = 2
	MsgTypeCreateRoom = 101
	MsgTypeJoinRoom   = 102
	MsgTypeChat       = 104
	MsgTypeGameAction = 201
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func sendJSON(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return send(c, msgID, data)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	userID := flag.Int64("user", 1, "user id to log in as")
	roomID := flag.String("room", "", "room to join; empty creates a new room")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	if err := sendJSON(c, MsgTypeLogin, map[string]int64{"userId": *userID}); err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	if *roomID == "" {
		log.Println("Creating a new room...")
		if err := send(c, MsgTypeCreateRoom, []byte{}); err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
	} else {
		log.Printf("Joining room %s...", *roomID)
		if err := sendJSON(c, MsgTypeJoinRoom, map[string]string{"roomId": *roomID}); err != nil {
			log.Fatalf("Join room failed: %v", err)
		}
	}

	log.Println("Commands: start | bet <amount> | hit | stand | double | say <msg>")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "start", "hit", "stand", "double":
				action := map[string]interface{}{"action": fields[0]}
				if err := sendJSON(c, MsgTypeGameAction, action); err != nil {
					log.Println("Write error:", err)
					return
				}
			case "bet":
				if len(fields) != 2 {
					log.Println("Usage: bet <amount>")
					continue
				}
				amount, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil {
					log.Println("Bad amount:", fields[1])
					continue
				}
				action := map[string]interface{}{"action": "bet", "amount": amount}
				if err := sendJSON(c, MsgTypeGameAction, action); err != nil {
					log.Println("Write error:", err)
					return
				}
			case "say":
				msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "say"))
				if err := sendJSON(c, MsgTypeChat, map[string]string{"message": msg}); err != nil {
					log.Println("Write error:", err)
					return
				}
			default:
				log.Println("Unknown command:", fields[0])
			}
		}
	}
}
