package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// sendBuffer is the number of frames queued per socket before new frames
// are dropped.
const sendBuffer = 32

// writeTimeout bounds a single frame write.
const writeTimeout = 10 * time.Second

// Frame is the wire unit in both directions.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// client is one connected socket.
type client struct {
	sid    string
	userID string
	conn   *websocket.Conn
	send   chan Frame
	done   chan struct{}
	once   sync.Once
}

func newClient(sid, userID string, conn *websocket.Conn) *client {
	return &client{
		sid:    sid,
		userID: userID,
		conn:   conn,
		send:   make(chan Frame, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue queues f without blocking. It reports false when the socket is
// closed or its queue is full.
func (c *client) enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		slog.Warn("ws: send queue full, dropping frame", "sid", c.sid, "event", f.Event)
		return false
	}
}

// writeLoop drains the queue until the client is stopped or a write fails.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.conn, f)
			cancel()
			if err != nil {
				slog.Debug("ws: write failed", "sid", c.sid, "event", f.Event, "err", err)
				c.stop()
				return
			}
		}
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub groups sockets into rooms keyed by user id. Every socket a user opens
// joins the same room, and responses go to the whole room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}
}

// leave removes c and returns the number of sockets left in its room.
func (h *Hub) leave(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.userID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
		return 0
	}
	return len(room)
}

// Emit queues f on every socket in room and returns how many accepted it.
func (h *Hub) Emit(room string, f Frame) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.enqueue(f) {
			n++
		}
	}
	return n
}

// Size returns the number of sockets in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the number of rooms with at least one socket.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// clients returns every connected socket.
func (h *Hub) clients() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for _, room := range h.rooms {
		for c := range room {
			out = append(out, c)
		}
	}
	return out
}
