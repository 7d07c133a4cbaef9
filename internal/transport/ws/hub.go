// Package ws streams session events to websocket subscribers.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain/session"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 20 * time.Second
	defaultBuffer       = 16
	maxReadBytes        = 4 << 10
)

// Config tunes subscriber connections.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	Buffer       int // queued events per subscriber before it is dropped
}

type subscriber struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans out session events to the websocket connections subscribed to that session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	cfg    Config
	up     websocket.Upgrader
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		cfg:  cfg,
		up: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish delivers ev to every subscriber of the session without blocking.
// A subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(sessionID string, ev session.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event",
			zap.String("session_id", sessionID), zap.String("topic", ev.Topic), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs[sessionID] {
		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("Dropping slow event subscriber", zap.String("session_id", sessionID))
		h.unsubscribe(sessionID, sub)
	}
}

// Subscribers returns the number of live subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// ServeWS upgrades the request and streams the session's events until the
// client goes away or falls behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.subscribe(sessionID)
	defer h.unsubscribe(sessionID, sub)

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)
}

func (h *Hub) subscribe(sessionID string) *subscriber {
	sub := &subscriber{
		send: make(chan []byte, h.cfg.Buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	metrics.EventSubscribers.Inc()
	return sub
}

func (h *Hub) unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	set := h.subs[sessionID]
	_, ok := set[sub]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()

	sub.close()
	if ok {
		metrics.EventSubscribers.Dec()
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *Hub) readLoop(conn *websocket.Conn, sub *subscriber) {
	defer sub.close()

	pongWait := 2 * h.cfg.PingInterval
	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-sub.done:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}
