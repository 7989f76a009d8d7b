// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"inlinecms/internal/clock"
	"inlinecms/internal/models"
)

var (
	_ ContentRepository = (*Memory)(nil)
	_ PageRepository    = (*Memory)(nil)
	_ TransitionLogger  = (*Memory)(nil)

	_ ContentRepository = (*ElementStore)(nil)
	_ PageRepository    = (*PageStore)(nil)
	_ TransitionLogger  = (*TransitionLogStore)(nil)
)

type elementID struct {
	page    string
	element string
}

// Memory is an in-memory repository with the same contract as the
// PostgreSQL stores. It backs STORE_BACKEND=memory and the tests of every
// package above the adapter. Records are cloned on the way in and out.
type Memory struct {
	mu          sync.RWMutex
	clock       clock.Clock
	pages       map[string]*models.ContentPage
	elements    map[elementID]*models.ContentElement
	transitions []models.TransitionRecord
}

// MemoryOption configures a Memory repository.
type MemoryOption func(*Memory)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithPages seeds the repository with pages.
func WithPages(pages ...*models.ContentPage) MemoryOption {
	return func(m *Memory) {
		for _, p := range pages {
			cp := clonePage(p)
			if cp.Version == 0 {
				cp.Version = 1
			}
			m.pages[p.PageKey] = cp
		}
	}
}

// NewMemory creates an empty in-memory repository.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:    clock.Real(),
		pages:    make(map[string]*models.ContentPage),
		elements: make(map[elementID]*models.ContentElement),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FetchPage returns all elements of a page ordered by element key.
func (m *Memory) FetchPage(ctx context.Context, pageKey string) ([]*models.ContentElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("fetch page", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.ContentElement{}
	for id, el := range m.elements {
		if id.page == pageKey {
			out = append(out, el.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementKey < out[j].ElementKey })
	return out, nil
}

// FetchElement returns nil, nil when the element does not exist.
func (m *Memory) FetchElement(ctx context.Context, pageKey, elementKey string) (*models.ContentElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("fetch element", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.elements[elementID{pageKey, elementKey}].Clone(), nil
}

// UpsertElement writes one language value.
func (m *Memory) UpsertElement(ctx context.Context, in UpsertInput) (*models.ContentElement, error) {
	const op = "upsert element"
	if err := ctx.Err(); err != nil {
		return nil, wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[in.PageKey]; !ok {
		return nil, Permanent(op, fmt.Errorf("%w: %s", ErrUnknownPage, in.PageKey))
	}
	now := m.clock.Now()
	id := elementID{in.PageKey, in.ElementKey}
	el, ok := m.elements[id]
	if !ok {
		el = &models.ContentElement{
			ID:         uuid.New(),
			PageKey:    in.PageKey,
			ElementKey: in.ElementKey,
			Type:       in.Type,
			Content:    make(map[string]models.Payload),
			Status:     models.ContentStatusDraft,
		}
		m.elements[id] = el
	}
	if el.Type != in.Type {
		return nil, Permanent(op, fmt.Errorf("%w: %s/%s is %s, not %s",
			ErrTypeMismatch, in.PageKey, in.ElementKey, el.Type, in.Type))
	}
	if in.Status != "" {
		if in.Status == models.ContentStatusPublished && el.Status != models.ContentStatusPublished {
			at := now
			el.PublishedAt = &at
		}
		el.Status = in.Status
	}
	el.Content[in.Lang] = in.Payload
	el.UpdatedAt = now
	el.UpdatedBy = in.UpdatedBy
	return el.Clone(), nil
}

// SetStatus applies a publication transition.
func (m *Memory) SetStatus(ctx context.Context, ch StatusChange) (*models.ContentElement, error) {
	const op = "set status"
	if err := ctx.Err(); err != nil {
		return nil, wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.elements[elementID{ch.PageKey, ch.ElementKey}]
	if !ok {
		return nil, Permanent(op, fmt.Errorf("%w: %s/%s", ErrNotFound, ch.PageKey, ch.ElementKey))
	}
	if el.Status != ch.From {
		return nil, Permanent(op, fmt.Errorf("%w: %s/%s is %s, expected %s",
			ErrStatusConflict, ch.PageKey, ch.ElementKey, el.Status, ch.From))
	}
	at := ch.At
	if at.IsZero() {
		at = m.clock.Now()
	}
	if ch.To == models.ContentStatusPublished {
		published := at
		el.PublishedAt = &published
	}
	el.Status = ch.To
	el.UpdatedAt = m.clock.Now()
	el.UpdatedBy = ch.Actor
	return el.Clone(), nil
}

// ReplaceElements overwrites the listed elements. The page is checked
// before any element is touched so a failure leaves it unchanged.
func (m *Memory) ReplaceElements(ctx context.Context, pageKey string, elements []*models.ContentElement, actor string) error {
	const op = "replace elements"
	if err := ctx.Err(); err != nil {
		return wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[pageKey]; !ok {
		return Permanent(op, fmt.Errorf("%w: %s", ErrUnknownPage, pageKey))
	}
	now := m.clock.Now()
	for _, in := range elements {
		id := elementID{pageKey, in.ElementKey}
		el := in.Clone()
		el.PageKey = pageKey
		if existing, ok := m.elements[id]; ok {
			el.ID = existing.ID
		} else if el.ID == uuid.Nil {
			el.ID = uuid.New()
		}
		if el.Content == nil {
			el.Content = make(map[string]models.Payload)
		}
		el.UpdatedAt = now
		el.UpdatedBy = actor
		m.elements[id] = el
	}
	return nil
}

// ListPages returns all pages ordered by display order, then key.
func (m *Memory) ListPages(ctx context.Context) ([]*models.ContentPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list pages", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ContentPage, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, clonePage(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].PageKey < out[j].PageKey
	})
	return out, nil
}

// FindPage returns nil, nil when the page does not exist.
func (m *Memory) FindPage(ctx context.Context, pageKey string) (*models.ContentPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("find page", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clonePage(m.pages[pageKey]), nil
}

// UpsertPage creates or updates a page, bumping the version when the
// layout changes.
func (m *Memory) UpsertPage(ctx context.Context, p *models.ContentPage) (*models.ContentPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("upsert page", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	saved := clonePage(p)
	if existing, ok := m.pages[p.PageKey]; ok {
		saved.CreatedAt = existing.CreatedAt
		saved.Version = existing.Version
		if existing.Layout != p.Layout {
			saved.Version++
		}
	} else {
		saved.CreatedAt = now
		saved.Version = 1
	}
	saved.UpdatedAt = now
	m.pages[p.PageKey] = saved
	return clonePage(saved), nil
}

// Log records a transition in memory.
func (m *Memory) Log(_ context.Context, rec models.TransitionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.transitions) + 1)
	m.transitions = append(m.transitions, rec)
}

// Transitions returns the logged transitions for a page, newest first.
func (m *Memory) Transitions(pageKey string) []models.TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TransitionRecord
	for i := len(m.transitions) - 1; i >= 0; i-- {
		if m.transitions[i].PageKey == pageKey {
			out = append(out, m.transitions[i])
		}
	}
	return out
}

func clonePage(p *models.ContentPage) *models.ContentPage {
	if p == nil {
		return nil
	}
	copied := *p
	if p.DisplayName != nil {
		copied.DisplayName = make(map[string]string, len(p.DisplayName))
		for k, v := range p.DisplayName {
			copied.DisplayName[k] = v
		}
	}
	return &copied
}
