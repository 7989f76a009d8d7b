// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/models"
)

func TestTransitionLogStoreLog(t *testing.T) {
	db := testDB(t)
	s := NewTransitionLogStore(db)
	page := testPage(t, db)
	ctx := context.Background()

	// Log should not error (best-effort).
	elementID := uuid.New()
	s.Log(ctx, models.TransitionRecord{
		ElementID: elementID, PageKey: page, ElementKey: "hero_title",
		From: models.ContentStatusDraft, To: models.ContentStatusPublished,
		Actor: "editor", TransitionedAt: time.Now(),
	})

	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM element_transitions WHERE element_id = $1", elementID,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTransitionLogStoreRecent(t *testing.T) {
	db := testDB(t)
	s := NewTransitionLogStore(db)
	page := testPage(t, db)
	ctx := context.Background()

	now := time.Now()
	s.Log(ctx, models.TransitionRecord{ElementID: uuid.New(), PageKey: page, ElementKey: "a",
		From: models.ContentStatusDraft, To: models.ContentStatusPublished, TransitionedAt: now.Add(-time.Minute)})
	s.Log(ctx, models.TransitionRecord{ElementID: uuid.New(), PageKey: page, ElementKey: "a",
		From: models.ContentStatusPublished, To: models.ContentStatusArchived, TransitionedAt: now})

	entries, err := s.Recent(ctx, page, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ContentStatusArchived, entries[0].To, "entries ordered by transitioned_at DESC")
}
