// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package publish implements the publication lifecycle of content
// elements: draft, published and archived.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"inlinecms/internal/clock"
	"inlinecms/internal/engine"
	"inlinecms/internal/models"
	"inlinecms/internal/store"
	"inlinecms/internal/validation"
)

// ErrInvalidTransition is returned for a transition not in the table.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[models.ContentStatus][]models.ContentStatus{
	models.ContentStatusDraft:     {models.ContentStatusPublished, models.ContentStatusArchived},
	models.ContentStatusPublished: {models.ContentStatusArchived},
	models.ContentStatusArchived:  {models.ContentStatusDraft},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to models.ContentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PublicVisible reports whether el may be shown outside the editor.
func PublicVisible(el *models.ContentElement) bool {
	return el != nil && el.IsPublished()
}

// ValidateForPublish checks that el has renderable content in lang.
// Rich text is judged on its rendered form, so markup that would be
// stripped does not count as content.
func ValidateForPublish(el *models.ContentElement, lang string) error {
	p, ok := el.Value(lang)
	if !ok || engine.Blank(el.Type, p) {
		return validation.New("publish "+el.ElementKey, validation.Issue{
			Field:   "content." + lang,
			Message: "cannot publish without content in the default language",
		})
	}
	return nil
}

// Invalidator drops cached public renders of a page.
type Invalidator interface {
	InvalidatePage(ctx context.Context, pageKey string)
}

// Config wires optional collaborators into a Machine.
type Config struct {
	DefaultLang string
	Log         store.TransitionLogger
	Cache       Invalidator
	Clock       clock.Clock
}

// Machine applies transitions through the content repository.
type Machine struct {
	repo        store.ContentRepository
	log         store.TransitionLogger
	cache       Invalidator
	clock       clock.Clock
	defaultLang string
}

// NewMachine creates a Machine. DefaultLang defaults to Arabic.
func NewMachine(repo store.ContentRepository, cfg Config) *Machine {
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = models.LangArabic
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Machine{
		repo:        repo,
		log:         cfg.Log,
		cache:       cfg.Cache,
		clock:       cfg.Clock,
		defaultLang: cfg.DefaultLang,
	}
}

// DefaultLang returns the language publishing is validated against.
func (m *Machine) DefaultLang() string { return m.defaultLang }

// Transition moves an element to status to. Requesting the current
// status is a no-op. On failure the element keeps its prior status.
func (m *Machine) Transition(ctx context.Context, pageKey, elementKey string, to models.ContentStatus, actor string) (*models.ContentElement, error) {
	if !to.Valid() {
		return nil, validation.New("transition", validation.Issue{Field: "status", Message: fmt.Sprintf("unknown status %q", to)})
	}
	el, err := m.repo.FetchElement(ctx, pageKey, elementKey)
	if err != nil {
		return nil, fmt.Errorf("transition fetch: %w", err)
	}
	if el == nil {
		return nil, fmt.Errorf("transition %s/%s: %w", pageKey, elementKey, store.ErrNotFound)
	}
	if el.Status == to {
		return el, nil
	}
	if !CanTransition(el.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, el.Status, to)
	}
	if to == models.ContentStatusPublished {
		if err := ValidateForPublish(el, m.defaultLang); err != nil {
			return nil, err
		}
	}

	at := m.clock.Now()
	updated, err := m.repo.SetStatus(ctx, store.StatusChange{
		PageKey:    pageKey,
		ElementKey: elementKey,
		From:       el.Status,
		To:         to,
		At:         at,
		Actor:      actor,
	})
	if err != nil {
		return nil, fmt.Errorf("transition %s/%s: %w", pageKey, elementKey, err)
	}

	if m.cache != nil {
		m.cache.InvalidatePage(ctx, pageKey)
	}
	if m.log != nil {
		m.log.Log(ctx, models.TransitionRecord{
			ElementID:      updated.ID,
			PageKey:        pageKey,
			ElementKey:     elementKey,
			From:           el.Status,
			To:             to,
			Actor:          actor,
			TransitionedAt: at,
		})
	}
	slog.Info("element transitioned", "page", pageKey, "element", elementKey, "from", el.Status, "to", to, "actor", actor)
	return updated, nil
}

// Publish moves a draft to published.
func (m *Machine) Publish(ctx context.Context, pageKey, elementKey, actor string) (*models.ContentElement, error) {
	return m.Transition(ctx, pageKey, elementKey, models.ContentStatusPublished, actor)
}

// Archive hides an element from the public site.
func (m *Machine) Archive(ctx context.Context, pageKey, elementKey, actor string) (*models.ContentElement, error) {
	return m.Transition(ctx, pageKey, elementKey, models.ContentStatusArchived, actor)
}

// Restore returns an archived element to draft.
func (m *Machine) Restore(ctx context.Context, pageKey, elementKey, actor string) (*models.ContentElement, error) {
	return m.Transition(ctx, pageKey, elementKey, models.ContentStatusDraft, actor)
}
