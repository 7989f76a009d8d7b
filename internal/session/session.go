// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package session scopes one editing interaction. A Session owns the
// editor.Store for a page together with the autosave.Scheduler and the
// preview.Bridge subscribed to it, and tears all three down together.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inlinecms/internal/autosave"
	"inlinecms/internal/clock"
	"inlinecms/internal/editor"
	"inlinecms/internal/engine"
	"inlinecms/internal/models"
	"inlinecms/internal/preview"
	"inlinecms/internal/publish"
	"inlinecms/internal/store"
)

const (
	// DefaultIdleTimeout is how long an untouched session lives.
	DefaultIdleTimeout = 2 * time.Hour
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("editing session not found")

// Transport connects bridges to preview surfaces.
type Transport interface {
	preview.Signaler
	Register(channel string, handler preview.ControlHandler) (unregister func())
}

// Deps are the shared collaborators of every session.
type Deps struct {
	Repo      store.ContentRepository
	Pages     store.PageRepository
	Overrides preview.Overrides
	// Transport may be nil, in which case previews are only reachable
	// through the override channel.
	Transport Transport
	// Cache, when set, drops public renders of a page after a save
	// changes one of its published elements.
	Cache     publish.Invalidator
	Clock     clock.Clock
}

// Config tunes sessions.
type Config struct {
	Autosave    autosave.Config
	Preview     preview.Config
	IdleTimeout time.Duration
}

// Session is one editor working on one page.
type Session struct {
	ID        string
	Page      string
	EditorID  string
	StartedAt time.Time

	store      *editor.Store
	scheduler  *autosave.Scheduler
	bridge     *preview.Bridge
	unregister func()

	mu       sync.Mutex
	lastSeen time.Time
}

// Store returns the session's element store.
func (s *Session) Store() *editor.Store { return s.store }

// Scheduler returns the session's autosave scheduler.
func (s *Session) Scheduler() *autosave.Scheduler { return s.scheduler }

// Bridge returns the session's preview bridge.
func (s *Session) Bridge() *preview.Bridge { return s.bridge }

// Binding returns the editable binding for one element language.
func (s *Session) Binding(elementKey string, typ models.ElementType, fallback models.Payload, lang string) *editor.Binding {
	return editor.NewBinding(s.store, editor.Key{Page: s.Page, Element: elementKey, Lang: lang}, typ, fallback)
}

// Edit records a local edit of one element language.
func (s *Session) Edit(elementKey, lang string, typ models.ElementType, p models.Payload) (editor.Change, bool, error) {
	return s.Binding(elementKey, typ, models.Payload{}, lang).Set(p)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Status is the externally visible state of a session.
type Status struct {
	ID                string            `json:"id"`
	Page              string            `json:"page"`
	EditorID          string            `json:"editor_id"`
	StartedAt         time.Time         `json:"started_at"`
	LastSeen          time.Time         `json:"last_seen"`
	HasUnsavedChanges bool              `json:"has_unsaved_changes"`
	Dirty             []string          `json:"dirty"`
	Failures          map[string]string `json:"failures,omitempty"`
	Autosave          autosave.Stats    `json:"autosave"`
	Preview           preview.Status    `json:"preview"`
}

// Status reports unsaved state, save failures and preview freshness.
func (s *Session) Status() Status {
	st := Status{
		ID:                s.ID,
		Page:              s.Page,
		EditorID:          s.EditorID,
		StartedAt:         s.StartedAt,
		LastSeen:          s.LastSeen(),
		HasUnsavedChanges: s.store.HasUnsavedChanges(),
		Dirty:             []string{},
		Autosave:          s.scheduler.Stats(),
		Preview:           s.bridge.Status(),
	}
	for _, ch := range s.store.Dirty() {
		st.Dirty = append(st.Dirty, ch.Key.String())
	}
	if failures := s.scheduler.Failures(); len(failures) > 0 {
		st.Failures = make(map[string]string, len(failures))
		for key, err := range failures {
			st.Failures[key.String()] = err.Error()
		}
	}
	return st
}

// Manager creates, looks up and ends sessions.
type Manager struct {
	deps Deps
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a Manager.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session for pageKey, loading its persisted elements.
func (m *Manager) Start(ctx context.Context, pageKey, editorID string) (*Session, error) {
	page, err := m.deps.Pages.FindPage(ctx, pageKey)
	if err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}
	if page == nil {
		return nil, fmt.Errorf("session start %s: %w", pageKey, store.ErrUnknownPage)
	}

	es := editor.NewStore(m.deps.Repo, m.deps.Clock)
	if err := es.Load(ctx, pageKey); err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}

	saveCfg := m.cfg.Autosave
	saveCfg.Actor = editorID

	var signal preview.Signaler
	if m.deps.Transport != nil {
		signal = m.deps.Transport
	}

	now := m.deps.Clock.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Page:      pageKey,
		EditorID:  editorID,
		StartedAt: now,
		store:     es,
		scheduler: autosave.New(es, m.saver(), m.deps.Clock, saveCfg),
		bridge:    preview.NewBridge(pageKey, es, m.deps.Overrides, signal, engine.RenderElement, m.deps.Clock, m.cfg.Preview),
		lastSeen:  now,
	}
	if m.deps.Transport != nil {
		s.unregister = m.deps.Transport.Register(s.bridge.Channel(), s.bridge)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	slog.Info("editing session started", "session", s.ID, "page", pageKey, "editor", editorID)
	return s, nil
}

func (m *Manager) saver() autosave.Saver {
	if m.deps.Cache == nil {
		return m.deps.Repo
	}
	return invalidatingSaver{Saver: m.deps.Repo, cache: m.deps.Cache}
}

// invalidatingSaver saves through the repository and invalidates the
// page's public renders when the saved element is publicly visible.
type invalidatingSaver struct {
	autosave.Saver
	cache publish.Invalidator
}

func (s invalidatingSaver) UpsertElement(ctx context.Context, in store.UpsertInput) (*models.ContentElement, error) {
	el, err := s.Saver.UpsertElement(ctx, in)
	if err == nil && publish.PublicVisible(el) {
		s.cache.InvalidatePage(ctx, in.PageKey)
	}
	return el, err
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(m.deps.Clock.Now())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// End tears a session down with policy, or the configured policy when
// empty. With flush, pending edits are saved first; if that fails the
// session stays open and the error is returned so the caller can retry
// or end it with drop.
func (m *Manager) End(ctx context.Context, id string, policy autosave.Policy) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if policy == "" {
		policy = s.scheduler.Config().Teardown
	}

	if policy == autosave.PolicyFlush {
		if _, err := s.scheduler.SaveNow(ctx); err != nil {
			return fmt.Errorf("end session %s: %w", id, err)
		}
	}

	m.mu.Lock()
	if m.sessions[id] != s {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	return m.teardown(ctx, s, policy)
}

func (m *Manager) teardown(ctx context.Context, s *Session, policy autosave.Policy) error {
	var errs []error
	if err := s.scheduler.CloseWith(ctx, policy); err != nil {
		errs = append(errs, err)
	}
	if s.unregister != nil {
		s.unregister()
	}
	if err := s.bridge.Close(ctx, true); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	slog.Info("editing session ended", "session", s.ID, "page", s.Page, "policy", policy,
		"unsaved", s.store.HasUnsavedChanges(), "error", err)
	return err
}

// Sweep ends every session idle for longer than the idle timeout using
// the configured teardown policy. It returns the number ended.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.deps.Clock.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].StartedAt.Before(expired[j].StartedAt) })
	for _, s := range expired {
		if err := m.teardown(ctx, s, s.scheduler.Config().Teardown); err != nil {
			slog.Error("idle session teardown failed", "session", s.ID, "error", err)
		}
	}
	return len(expired)
}

// StartJanitor runs Sweep every interval until Close.
func (m *Manager) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.IdleTimeout / 4
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(context.Background()); n > 0 {
					slog.Info("expired idle editing sessions", "count", n)
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the janitor and ends every session with its configured
// policy.
func (m *Manager) Close(ctx context.Context) error {
	if m.stop != nil {
		close(m.stop)
		<-m.done
		m.stop = nil
	}

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := m.teardown(ctx, s, s.scheduler.Config().Teardown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
