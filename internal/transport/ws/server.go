// Package ws is the WebSocket transport. Each connection identifies its user
// with the userId query parameter and joins that user's room. Chat events
// are acknowledged at once and answered from a background goroutine, so a
// slow model never blocks the socket.
//
// Every frame in both directions is a JSON object {"event": ..., "data": {...}}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Monterroso/Frinny-Backend/internal/agent"
	"github.com/Monterroso/Frinny-Backend/internal/feedback"
	"github.com/Monterroso/Frinny-Backend/internal/observe"
)

// Outbound event names.
const (
	EventConnected        = "connection_established"
	EventDisconnected     = "disconnect_acknowledged"
	EventQueryAck         = "query_ack"
	EventFeedback         = "feedback"
	EventFeedbackResponse = "feedback_response"
	EventError            = "error"
)

// maxFrameBytes caps an inbound frame; combat states can be large.
const maxFrameBytes = 1 << 20

// route maps an inbound event to the invoker event type and the event the
// response is emitted under.
type route struct {
	eventType string
	response  string
	ack       bool
}

var routes = map[string]route{
	"query":                    {eventType: "query", response: "query_response", ack: true},
	"character_creation_start": {eventType: "character_creation", response: "character_creation_response"},
	"level_up":                 {eventType: "level_up", response: "level_up_response"},
	"combat_turn":              {eventType: "combat_turn", response: "combat_turn_response"},
	"combat_start":             {eventType: "combat_start", response: "combat_start_response"},
}

// Config holds the dependencies of a [Server]. Invoker is required.
type Config struct {
	Invoker agent.Invoker

	// Feedback receives "feedback" events. Nil keeps them in memory.
	Feedback feedback.Sink

	// Limiter throttles events per user. Nil uses [NewLimiter] defaults.
	Limiter *Limiter

	// Endpoints is sent to clients in connection_established.
	Endpoints map[string][]string

	// OriginPatterns are passed to the upgrader. Empty allows any origin.
	OriginPatterns []string

	Metrics *observe.Metrics

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Server accepts WebSocket connections and relays chat events to the invoker.
type Server struct {
	hub       *Hub
	invoker   agent.Invoker
	feedback  feedback.Sink
	limiter   *Limiter
	endpoints map[string][]string
	origins   []string
	metrics   *observe.Metrics
	now       func() time.Time
	newID     func() string

	// ctx outlives individual connections: a response is still delivered
	// to the room when the requesting socket has gone.
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in dispatch against the wg.Wait in Shutdown. Once
	// closing is set no new response goroutine starts.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Invoker == nil {
		return nil, errors.New("ws: Invoker must not be nil")
	}
	s := &Server{
		hub:       NewHub(),
		invoker:   cfg.Invoker,
		feedback:  cfg.Feedback,
		limiter:   cfg.Limiter,
		endpoints: cfg.Endpoints,
		origins:   cfg.OriginPatterns,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if s.feedback == nil {
		s.feedback = &feedback.MemoryStore{}
	}
	if s.limiter == nil {
		s.limiter = NewLimiter(0, 0)
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Hub returns the server's room registry.
func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP upgrades the request and serves the connection until it closes.
// A request without a userId query parameter, or with one containing ':',
// is rejected before the upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		slog.Warn("ws: connection rejected, no userId", "remote", r.RemoteAddr)
		http.Error(w, "userId query parameter is required", http.StatusBadRequest)
		return
	}
	// Prefixed ids such as "discord:<id>" belong to other transports.
	if strings.Contains(userID, ":") {
		slog.Warn("ws: connection rejected, reserved userId", "user_id", userID, "remote", r.RemoteAddr)
		http.Error(w, "userId must not contain ':'", http.StatusBadRequest)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("ws: upgrade failed", "user_id", userID, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	c := newClient(s.newID(), userID, conn)
	s.hub.join(c)
	if s.metrics != nil {
		s.metrics.ActiveConnections.Add(r.Context(), 1)
	}
	go c.writeLoop()
	slog.Info("ws: client connected", "user_id", userID, "sid", c.sid)

	c.enqueue(Frame{Event: EventConnected, Data: map[string]any{
		"status":    "connected",
		"endpoints": s.endpoints,
		"userId":    userID,
		"sid":       c.sid,
		"timestamp": s.now().UnixMilli(),
	}})

	s.readLoop(r.Context(), c)

	remaining := s.hub.leave(c)
	c.stop()
	if s.metrics != nil {
		s.metrics.ActiveConnections.Add(context.Background(), -1)
	}
	if remaining > 0 {
		s.hub.Emit(userID, Frame{Event: EventDisconnected, Data: map[string]any{
			"status":    "disconnected",
			"userId":    userID,
			"sid":       c.sid,
			"timestamp": s.now().UnixMilli(),
		}})
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("ws: client disconnected", "user_id", userID, "sid", c.sid)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("ws: read failed", "sid", c.sid, "err", err)
			}
			return
		}
		var f Frame
		if typ != websocket.MessageText || json.Unmarshal(data, &f) != nil || f.Event == "" {
			c.enqueue(s.errorFrame("Invalid message format", ""))
			continue
		}
		s.dispatch(c, f)
	}
}

// dispatch handles one inbound frame on the read goroutine. Anything that
// may block is handed to a background goroutine.
func (s *Server) dispatch(c *client, f Frame) {
	if f.Data == nil {
		f.Data = map[string]any{}
	}
	requestID, _ := f.Data["request_id"].(string)

	if !s.limiter.Allow(c.userID) {
		if s.metrics != nil {
			s.metrics.RateLimited.Add(s.ctx, 1)
		}
		c.enqueue(s.errorFrame("Rate limit exceeded", requestID))
		return
	}

	if f.Event == EventFeedback {
		s.handleFeedback(c, f.Data, requestID)
		return
	}
	rt, ok := routes[f.Event]
	if !ok {
		c.enqueue(s.errorFrame(fmt.Sprintf("Unknown event: %s", f.Event), requestID))
		return
	}

	if requestID == "" {
		requestID = s.newID()
	}
	if !s.track() {
		slog.Debug("ws: event dropped during shutdown", "user_id", c.userID, "event", f.Event, "request_id", requestID)
		c.enqueue(s.errorFrame("Server shutting down", requestID))
		return
	}
	if rt.ack {
		c.enqueue(Frame{Event: EventQueryAck, Data: map[string]any{
			"status":     "processing",
			"request_id": requestID,
			"timestamp":  s.now().UnixMilli(),
		}})
	}

	req := agent.Request{
		EventType: rt.eventType,
		UserID:    c.userID,
		RequestID: requestID,
		Payload:   f.Data,
	}
	go s.respond(c.userID, c.sid, f.Event, rt, req)
}

// track registers one in-flight response. It reports false once Shutdown
// has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// respond runs the invoker and emits the result to the user's room.
func (s *Server) respond(userID, sid, event string, rt route, req agent.Request) {
	defer s.wg.Done()
	ctx := observe.WithLogAttrs(s.ctx, slog.String("sid", sid))
	log := observe.Logger(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("ws: panic in event handler", "event", event, "request_id", req.RequestID, "panic", r)
			s.hub.Emit(userID, s.errorFrame("Internal server error during "+event, req.RequestID))
		}
	}()

	resp := s.invoker.Invoke(ctx, req)
	if s.hub.Emit(userID, Frame{Event: rt.response, Data: resp.Map()}) == 0 {
		log.Warn("ws: response had no recipients", "user_id", userID, "event", rt.response, "request_id", req.RequestID)
	}
}

func (s *Server) handleFeedback(c *client, data map[string]any, requestID string) {
	if requestID == "" {
		requestID = s.newID()
	}
	e := feedback.Entry{
		Timestamp: s.now(),
		UserID:    c.userID,
		Source:    feedback.SourceSocket,
		RequestID: requestID,
		Data:      data,
	}
	e.ContextID, _ = data["context_id"].(string)
	e.Comment, _ = data["comment"].(string)
	if n, ok := data["rating"].(float64); ok {
		e.Rating = int(n)
	}
	if err := s.feedback.Save(s.ctx, e); err != nil {
		slog.Error("ws: feedback not recorded", "user_id", c.userID, "err", err)
		c.enqueue(s.errorFrame("Failed to record feedback", requestID))
		return
	}
	c.enqueue(Frame{Event: EventFeedbackResponse, Data: map[string]any{
		"status":     "success",
		"message":    "Feedback received",
		"request_id": requestID,
		"timestamp":  s.now().UnixMilli(),
	}})
}

func (s *Server) errorFrame(msg, requestID string) Frame {
	data := map[string]any{
		"error":     msg,
		"timestamp": s.now().UnixMilli(),
	}
	if requestID != "" {
		data["request_id"] = requestID
	}
	return Frame{Event: EventError, Data: data}
}

// Shutdown stops accepting connections, waits for in-flight responses until
// ctx expires, then closes every socket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("ws: shutdown: %w", ctx.Err())
	}
	s.cancel()
	for _, c := range s.hub.clients() {
		c.stop()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return err
}
