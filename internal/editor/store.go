// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package editor holds what the editor currently believes page content to
// be: persisted elements loaded from the repository merged with local,
// not-yet-saved edits. Every local edit is published as a Change to
// subscribers (the autosave scheduler and the preview bridge).
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"inlinecms/internal/clock"
	"inlinecms/internal/models"
	"inlinecms/internal/slug"
)

var (
	// ErrInvalidKey is returned for empty or malformed keys.
	ErrInvalidKey = errors.New("invalid element key")
	// ErrInvalidType is returned for unknown element types.
	ErrInvalidType = errors.New("invalid element type")
	// ErrTypeMismatch is returned when an edit uses a different type than
	// the element already has.
	ErrTypeMismatch = errors.New("element type mismatch")
)

// Key addresses one language variant of one element.
type Key struct {
	Page    string
	Element string
	Lang    string
}

func (k Key) String() string {
	return k.Page + "/" + k.Element + "/" + k.Lang
}

// Validate checks that every part of the key is set and normalized.
func (k Key) Validate() error {
	if !slug.Valid(k.Page) || !slug.Valid(k.Element) || k.Lang == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

// Change is emitted for every recorded local edit. Seq increases
// monotonically per Store.
type Change struct {
	Key     Key
	Type    models.ElementType
	Payload models.Payload
	Seq     uint64
	At      time.Time
}

// Listener receives changes synchronously, after the store lock has been
// released. Listeners must not block.
type Listener func(Change)

// Loader fetches persisted elements.
type Loader interface {
	FetchPage(ctx context.Context, pageKey string) ([]*models.ContentElement, error)
}

type elementRef struct {
	page    string
	element string
}

type localValue struct {
	typ     models.ElementType
	payload models.Payload
	seq     uint64
	at      time.Time
}

type subscription struct {
	id int
	fn Listener
}

// Store is safe for concurrent use.
type Store struct {
	loader Loader
	clock  clock.Clock

	mu        sync.RWMutex
	seq       uint64
	persisted map[elementRef]*models.ContentElement
	local     map[Key]*localValue
	dirty     map[Key]uint64
	subs      []subscription
	nextSubID int
}

// NewStore creates an empty Store reading persisted state from loader.
func NewStore(loader Loader, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		loader:    loader,
		clock:     clk,
		persisted: make(map[elementRef]*models.ContentElement),
		local:     make(map[Key]*localValue),
		dirty:     make(map[Key]uint64),
	}
}

// Load seeds persisted state for a page. Local edits are never replaced.
func (s *Store) Load(ctx context.Context, pageKey string) error {
	elements, err := s.loader.FetchPage(ctx, pageKey)
	if err != nil {
		return fmt.Errorf("load page %s: %w", pageKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range elements {
		s.persisted[elementRef{el.PageKey, el.ElementKey}] = el.Clone()
	}
	slog.Debug("editor store loaded", "page", pageKey, "elements", len(elements))
	return nil
}

// Get returns the current value for key: the local edit if any, else the
// persisted value regardless of status, else fallback.
func (s *Store) Get(key Key, fallback models.Payload) models.Payload {
	if p, ok := s.Lookup(key); ok {
		return p
	}
	return fallback
}

// Lookup returns the current value for key and whether one exists.
func (s *Store) Lookup(key Key) (models.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(key)
}

func (s *Store) lookupLocked(key Key) (models.Payload, bool) {
	if lv, ok := s.local[key]; ok {
		return lv.payload, true
	}
	return s.persisted[elementRef{key.Page, key.Element}].Value(key.Lang)
}

// TypeOf returns the known element type for page/element, if any.
func (s *Store) TypeOf(pageKey, elementKey string) (models.ElementType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typeOfLocked(pageKey, elementKey)
}

func (s *Store) typeOfLocked(page, element string) (models.ElementType, bool) {
	if el, ok := s.persisted[elementRef{page, element}]; ok {
		return el.Type, true
	}
	for k, lv := range s.local {
		if k.Page == page && k.Element == element {
			return lv.typ, true
		}
	}
	return "", false
}

// SetLocal records an edit and notifies subscribers. It reports false
// without notifying when payload equals the current value.
func (s *Store) SetLocal(key Key, typ models.ElementType, payload models.Payload) (Change, bool, error) {
	if err := key.Validate(); err != nil {
		return Change{}, false, err
	}
	if !typ.Valid() {
		return Change{}, false, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}

	s.mu.Lock()
	if known, ok := s.typeOfLocked(key.Page, key.Element); ok && known != typ {
		s.mu.Unlock()
		return Change{}, false, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, known, typ)
	}
	if current, ok := s.lookupLocked(key); ok && current.Equal(payload) {
		s.mu.Unlock()
		return Change{}, false, nil
	}
	s.seq++
	ch := Change{Key: key, Type: typ, Payload: payload, Seq: s.seq, At: s.clock.Now()}
	s.local[key] = &localValue{typ: typ, payload: payload, seq: ch.Seq, at: ch.At}
	s.dirty[key] = ch.Seq
	subs := make([]Listener, len(s.subs))
	for i, sub := range s.subs {
		subs[i] = sub.fn
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ch)
	}
	return ch, true, nil
}

// MarkClean records a confirmed save of the edit with sequence number
// seq. The key stays dirty when a newer edit superseded seq. saved, when
// not nil, is the element as returned by the repository and becomes the
// persisted state.
func (s *Store) MarkClean(key Key, seq uint64, saved *models.ContentElement) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ek := elementRef{key.Page, key.Element}
	if saved != nil {
		s.persisted[ek] = saved.Clone()
	}

	latest, dirty := s.dirty[key]
	if !dirty || latest != seq {
		return false
	}
	lv := s.local[key]
	if saved == nil && lv != nil {
		el := s.persisted[ek]
		if el == nil {
			el = &models.ContentElement{
				PageKey:    key.Page,
				ElementKey: key.Element,
				Type:       lv.typ,
				Status:     models.ContentStatusDraft,
				Content:    make(map[string]models.Payload),
			}
			s.persisted[ek] = el
		}
		if el.Content == nil {
			el.Content = make(map[string]models.Payload)
		}
		el.Content[key.Lang] = lv.payload
	}
	delete(s.dirty, key)
	delete(s.local, key)
	return true
}

// Apply replaces the persisted state of one element, for example after a
// publication transition. Local edits keep precedence.
func (s *Store) Apply(el *models.ContentElement) {
	if el == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted[elementRef{el.PageKey, el.ElementKey}] = el.Clone()
}

// Discard drops the local edit for key without saving it.
func (s *Store) Discard(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	delete(s.local, key)
}

// Subscribe registers fn for every future change. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// IsDirty reports whether key has an unsaved local edit.
func (s *Store) IsDirty(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirty[key]
	return ok
}

// Latest returns the newest unsaved change for key.
func (s *Store) Latest(key Key) (Change, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.dirty[key]
	if !ok {
		return Change{}, false
	}
	lv := s.local[key]
	return Change{Key: key, Type: lv.typ, Payload: lv.payload, Seq: seq, At: lv.at}, true
}

// HasUnsavedChanges reports whether any key is dirty. It only turns false
// after every edit has been confirmed saved or explicitly discarded.
func (s *Store) HasUnsavedChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) > 0
}

// Dirty returns the latest unsaved change of every dirty key, ordered by
// sequence number.
func (s *Store) Dirty() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Change, 0, len(s.dirty))
	for key, seq := range s.dirty {
		lv := s.local[key]
		out = append(out, Change{Key: key, Type: lv.typ, Payload: lv.payload, Seq: seq, At: lv.at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Status returns the persisted status of an element. Elements that only
// exist locally are drafts.
func (s *Store) Status(pageKey, elementKey string) models.ContentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if el, ok := s.persisted[elementRef{pageKey, elementKey}]; ok {
		return el.Status
	}
	return models.ContentStatusDraft
}

// Elements returns the editor view of a page: persisted elements with
// local edits applied, plus elements that only exist locally, ordered by
// element key.
func (s *Store) Elements(pageKey string) []*models.ContentElement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]*models.ContentElement)
	for ek, el := range s.persisted {
		if ek.page == pageKey {
			merged[ek.element] = el.Clone()
		}
	}
	for key, lv := range s.local {
		if key.Page != pageKey {
			continue
		}
		el, ok := merged[key.Element]
		if !ok {
			el = &models.ContentElement{
				PageKey:    key.Page,
				ElementKey: key.Element,
				Type:       lv.typ,
				Status:     models.ContentStatusDraft,
				Content:    make(map[string]models.Payload),
			}
			merged[key.Element] = el
		}
		if el.Content == nil {
			el.Content = make(map[string]models.Payload)
		}
		el.Content[key.Lang] = lv.payload
		if lv.at.After(el.UpdatedAt) {
			el.UpdatedAt = lv.at
		}
	}

	out := make([]*models.ContentElement, 0, len(merged))
	for _, el := range merged {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementKey < out[j].ElementKey })
	return out
}
