// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package preview

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ControlHandler receives control messages for a channel.
type ControlHandler interface {
	HandleControl(msg Message) error
}

// HubConfig tunes the websocket transport.
type HubConfig struct {
	// AllowedOrigins lists origins allowed to open a preview socket. Empty
	// means same host only.
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	SendBuffer     int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	return c
}

type surface struct {
	conn    *websocket.Conn
	channel string
	send    chan Message
	done    chan struct{}
}

// Hub connects preview surfaces over websockets. Each surface joins the
// room for its page's channel key.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	rooms    map[string]map[*surface]struct{}
	handlers map[string]ControlHandler
}

var _ Signaler = (*Hub)(nil)

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		rooms:    make(map[string]map[*surface]struct{}),
		handlers: make(map[string]ControlHandler),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// Register routes control messages for channel to handler. The returned
// func removes the registration if it is still current.
func (h *Hub) Register(channel string, handler ControlHandler) (unregister func()) {
	h.mu.Lock()
	h.handlers[channel] = handler
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.handlers[channel] == handler {
			delete(h.handlers, channel)
		}
	}
}

// Broadcast queues msg for every surface in channel's room. Surfaces
// whose buffer is full miss the message.
func (h *Hub) Broadcast(channel string, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.rooms[channel] {
		select {
		case s.send <- msg:
			n++
		default:
			slog.Warn("preview surface send buffer full", "channel", channel)
		}
	}
	return n
}

// Surfaces returns the number of connected surfaces for channel.
func (h *Hub) Surfaces(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}

// ServeHTTP upgrades GET ?page=<path> to a preview socket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	if NormalizePath(page) == "" {
		http.Error(w, "missing page", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("preview upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s := &surface{
		conn:    conn,
		channel: ChannelKey(page),
		send:    make(chan Message, h.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
	h.join(s)
	slog.Info("preview surface connected", "channel", s.channel, "page", page)

	go h.writeLoop(s)
	h.readLoop(s)

	h.leave(s)
	close(s.done)
	slog.Info("preview surface disconnected", "channel", s.channel)
}

func (h *Hub) join(s *surface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[s.channel]
	if !ok {
		room = make(map[*surface]struct{})
		h.rooms[s.channel] = room
	}
	room[s] = struct{}{}
}

func (h *Hub) leave(s *surface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[s.channel]
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, s.channel)
	}
}

func (h *Hub) readLoop(s *surface) {
	defer s.conn.Close()
	s.conn.SetReadLimit(4096)
	readTimeout := 2 * h.cfg.PingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("preview socket read failed", "channel", s.channel, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := DecodeControl(data)
		if err != nil {
			slog.Warn("rejected preview message", "channel", s.channel, "error", err)
			continue
		}
		h.mu.RLock()
		handler := h.handlers[s.channel]
		h.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler.HandleControl(msg); err != nil && !errors.Is(err, ErrUnsupportedMessage) {
			slog.Warn("preview control message failed", "channel", s.channel, "type", msg.Type, "error", err)
		}
	}
}

func (h *Hub) writeLoop(s *surface) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.send:
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("encode preview message", "error", err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
