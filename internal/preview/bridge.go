// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package preview keeps preview surfaces in step with the editor. Local
// edits flow one way, from the editor.Store into an override channel,
// followed by a tokenized refresh signal. Surfaces answer only with the
// control messages ready and refresh-ack.
package preview

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"inlinecms/internal/clock"
	"inlinecms/internal/editor"
	"inlinecms/internal/models"
	"inlinecms/internal/sanitize"
)

// MaxDelay is the upper bound for refresh coalescing.
const MaxDelay = 200 * time.Millisecond

// SyncError records a refresh the surface never acknowledged.
type SyncError struct {
	Channel string
	Token   uint64
	Waited  time.Duration
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("preview %s out of sync: no ack for refresh %d after %s", e.Channel, e.Token, e.Waited)
}

// Source is the read side of the editor store. The bridge never writes
// back to it.
type Source interface {
	Subscribe(fn editor.Listener) (unsubscribe func())
	Get(key editor.Key, fallback models.Payload) models.Payload
}

// Signaler delivers a message to every surface watching a channel and
// reports how many received it.
type Signaler interface {
	Broadcast(channel string, msg Message) int
}

// ElementRenderer renders a single element value as production would.
type ElementRenderer func(typ models.ElementType, p models.Payload) (template.HTML, error)

// Config tunes a Bridge.
type Config struct {
	Delay      time.Duration
	AckTimeout time.Duration
	PutTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{Delay: 100 * time.Millisecond, AckTimeout: 2 * time.Second, PutTimeout: 2 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Delay <= 0 || c.Delay >= MaxDelay {
		c.Delay = d.Delay
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.PutTimeout <= 0 {
		c.PutTimeout = d.PutTimeout
	}
	return c
}

// Status is a snapshot of a bridge's freshness.
type Status struct {
	Channel string `json:"channel"`
	Page    string `json:"page"`
	Token   uint64 `json:"token"`
	Acked   uint64 `json:"acked"`
	Fresh   bool   `json:"fresh"`
	Error   string `json:"error,omitempty"`
}

// Bridge follows the edits of one page.
type Bridge struct {
	page      string
	channel   string
	source    Source
	overrides Overrides
	signal    Signaler
	render    ElementRenderer
	clock     clock.Clock
	cfg       Config

	// flushMu orders flushes: overrides land in token order.
	flushMu sync.Mutex

	mu          sync.Mutex
	pending     map[string]Override
	refresh     clock.Timer
	ackTimer    clock.Timer
	token       uint64
	acked       uint64
	lastErr     error
	closed      bool
	unsubscribe func()
}

// NewBridge subscribes a bridge for pageKey to source. signal may be nil
// when no surface transport is wired.
func NewBridge(pageKey string, source Source, overrides Overrides, signal Signaler, render ElementRenderer, clk clock.Clock, cfg Config) *Bridge {
	if clk == nil {
		clk = clock.Real()
	}
	b := &Bridge{
		page:      pageKey,
		channel:   ChannelKey(pageKey),
		source:    source,
		overrides: overrides,
		signal:    signal,
		render:    render,
		clock:     clk,
		cfg:       cfg.withDefaults(),
		pending:   make(map[string]Override),
	}
	b.unsubscribe = source.Subscribe(b.onChange)
	return b
}

// Channel returns the override channel key.
func (b *Bridge) Channel() string { return b.channel }

// Page returns the page key the bridge follows.
func (b *Bridge) Page() string { return b.page }

func (b *Bridge) onChange(ch editor.Change) {
	if ch.Key.Page != b.page {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	o := Override{
		Element: ch.Key.Element,
		Lang:    ch.Key.Lang,
		Type:    ch.Type,
		Payload: sanitize.Payload(ch.Type, ch.Payload),
	}
	b.pending[o.Field()] = o
	// Coalesce: the first change arms the timer, later ones ride along.
	if b.refresh == nil {
		b.refresh = b.clock.AfterFunc(b.cfg.Delay, b.flush)
	}
}

// Refresh publishes pending overrides and signals surfaces immediately.
func (b *Bridge) Refresh() {
	b.mu.Lock()
	if b.refresh != nil {
		b.refresh.Stop()
	}
	b.mu.Unlock()
	b.flush()
}

func (b *Bridge) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.refresh = nil
	b.token++
	token := b.token
	batch := b.pending
	b.pending = make(map[string]Override)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PutTimeout)
	defer cancel()
	var errs []error
	for _, o := range batch {
		o.Token = token
		if err := b.overrides.Put(ctx, b.channel, o); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("preview override write failed", "channel", b.channel, "token", token, "error", err)
		b.mu.Lock()
		b.lastErr = fmt.Errorf("write preview overrides: %w", err)
		b.mu.Unlock()
	}

	if b.signal == nil {
		return
	}
	msg := Message{Type: MessageRefresh, Token: token, Timestamp: b.clock.Now(), Page: b.page}
	if n := b.signal.Broadcast(b.channel, msg); n == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || token != b.token {
		return
	}
	if b.ackTimer != nil {
		b.ackTimer.Stop()
	}
	b.ackTimer = b.clock.AfterFunc(b.cfg.AckTimeout, func() { b.ackExpired(token) })
}

func (b *Bridge) ackExpired(token uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.acked >= token || token != b.token {
		return
	}
	err := &SyncError{Channel: b.channel, Token: token, Waited: b.cfg.AckTimeout}
	b.lastErr = err
	slog.Warn("preview surface did not acknowledge refresh", "channel", b.channel, "page", b.page, "token", token)
}

// HandleControl processes a message received from a surface. Stale or
// duplicate acks are ignored. ready triggers an immediate refresh.
func (b *Bridge) HandleControl(msg Message) error {
	switch msg.Type {
	case MessageReady:
		slog.Debug("preview surface ready", "channel", b.channel)
		b.Refresh()
		return nil

	case MessageRefreshAck:
		b.mu.Lock()
		defer b.mu.Unlock()
		if msg.Token != b.token || msg.Token <= b.acked {
			slog.Debug("ignoring stale preview ack", "channel", b.channel, "token", msg.Token, "latest", b.token)
			return nil
		}
		b.acked = msg.Token
		if b.ackTimer != nil {
			b.ackTimer.Stop()
			b.ackTimer = nil
		}
		var syncErr *SyncError
		if errors.As(b.lastErr, &syncErr) {
			b.lastErr = nil
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)
}

// Fragment renders the current editor value of one element, the
// content-only preview.
func (b *Bridge) Fragment(key editor.Key, typ models.ElementType, fallback models.Payload) (template.HTML, error) {
	if b.render == nil {
		return "", errors.New("preview fragment: no renderer configured")
	}
	return b.render(typ, b.source.Get(key, fallback))
}

// Status reports the latest token, the latest acknowledged token and the
// last synchronization error.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Channel: b.channel,
		Page:    b.page,
		Token:   b.token,
		Acked:   b.acked,
		Fresh:   b.lastErr == nil,
	}
	if b.lastErr != nil {
		st.Error = b.lastErr.Error()
	}
	return st
}

// Err returns the last synchronization error, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close detaches the bridge from its source. When clear is set the
// override channel is emptied.
func (b *Bridge) Close(ctx context.Context, clear bool) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.refresh != nil {
		b.refresh.Stop()
		b.refresh = nil
	}
	if b.ackTimer != nil {
		b.ackTimer.Stop()
		b.ackTimer = nil
	}
	b.pending = nil
	b.mu.Unlock()

	// An in-flight flush finishes before the channel is cleared.
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.unsubscribe()
	if !clear {
		return nil
	}
	if err := b.overrides.Clear(ctx, b.channel); err != nil {
		return fmt.Errorf("clear preview channel %s: %w", b.channel, err)
	}
	return nil
}
