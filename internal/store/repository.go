// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store is the content repository adapter. It maps content pages,
// elements and transition history onto PostgreSQL, and offers an
// in-memory implementation with the same contract. Every error leaving
// the package is a *RepositoryError classified as transient or permanent.
package store

import (
	"context"
	"time"

	"inlinecms/internal/models"
)

// ContentRepository reads and writes content elements.
type ContentRepository interface {
	// FetchPage returns every element of a page. An unknown page yields an
	// empty slice.
	FetchPage(ctx context.Context, pageKey string) ([]*models.ContentElement, error)
	// FetchElement returns nil, nil when the element does not exist.
	FetchElement(ctx context.Context, pageKey, elementKey string) (*models.ContentElement, error)
	// UpsertElement writes one language variant, creating the element when
	// needed. Repeating an identical call only bumps the timestamp.
	UpsertElement(ctx context.Context, in UpsertInput) (*models.ContentElement, error)
	// SetStatus moves an element from one status to another, failing with
	// ErrStatusConflict if the stored status is no longer ch.From.
	SetStatus(ctx context.Context, ch StatusChange) (*models.ContentElement, error)
	// ReplaceElements overwrites the listed elements of a page, all
	// languages and status included, in one transaction.
	ReplaceElements(ctx context.Context, pageKey string, elements []*models.ContentElement, actor string) error
}

// PageRepository reads and writes content pages.
type PageRepository interface {
	ListPages(ctx context.Context) ([]*models.ContentPage, error)
	// FindPage returns nil, nil when the page does not exist.
	FindPage(ctx context.Context, pageKey string) (*models.ContentPage, error)
	UpsertPage(ctx context.Context, p *models.ContentPage) (*models.ContentPage, error)
}

// TransitionLogger records publication transitions. Logging is
// best-effort and never fails the transition.
type TransitionLogger interface {
	Log(ctx context.Context, rec models.TransitionRecord)
}

// UpsertInput is one language value written by UpsertElement.
type UpsertInput struct {
	PageKey    string
	ElementKey string
	Lang       string
	Type       models.ElementType
	Payload    models.Payload
	// Status is written as given. Empty keeps the stored status, or
	// draft for a new element.
	Status    models.ContentStatus
	UpdatedBy string
}

// StatusChange describes one publication transition.
type StatusChange struct {
	PageKey    string
	ElementKey string
	From       models.ContentStatus
	To         models.ContentStatus
	At         time.Time
	Actor      string
}
