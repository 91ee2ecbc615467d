package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/armmirror/internal/app"
	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/kinematics"
)

const (
	writeWait      = 2 * time.Second
	clientBacklog  = 8
	messageDetect  = "detected"
	messageMissing = "not_detected"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// anglesMessage is the JSON frame sent to WebSocket clients.
type anglesMessage struct {
	Type      string                `json:"type"`
	Side      kinematics.Side       `json:"side,omitempty"`
	Raw       *kinematics.ArmAngles `json:"raw,omitempty"`
	Smoothed  *kinematics.ArmAngles `json:"smoothed,omitempty"`
	Commands  kinematics.Commands   `json:"commands,omitempty"`
	Reason    kinematics.Reason     `json:"reason,omitempty"`
	Arm       arm.State             `json:"arm"`
	Timestamp int64                 `json:"timestamp"`
}

func newAnglesMessage(ev app.Event) anglesMessage {
	msg := anglesMessage{Arm: ev.State, Timestamp: ev.At.UnixMilli()}
	switch o := ev.Outcome.(type) {
	case kinematics.Detected:
		msg.Type = messageDetect
		msg.Side = o.Side
		msg.Raw = &o.Raw
		msg.Smoothed = &o.Smoothed
		msg.Commands = o.Commands
	case kinematics.NotDetected:
		msg.Type = messageMissing
		msg.Reason = o.Reason
	}
	return msg
}

// AnglesHub broadcasts tracking events to WebSocket clients. A client that
// falls behind loses messages rather than slowing the pipeline.
type AnglesHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewAnglesHub creates a hub with no clients.
func NewAnglesHub() *AnglesHub {
	return &AnglesHub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Publish queues an event for every client. It never blocks.
func (h *AnglesHub) Publish(ev app.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(newAnglesMessage(ev))
	if err != nil {
		log.Printf("Failed to encode angles: %v", err)
		return
	}
	for _, send := range h.clients {
		select {
		case send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *AnglesHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *AnglesHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBacklog)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(done)
	}()

	go h.writeLoop(conn, send, done)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *AnglesHub) writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		}
	}
}
