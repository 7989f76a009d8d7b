// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// cache_log.go records publication transitions in the database for audit
// purposes. Each entry captures which element moved, between which
// statuses, who moved it and when.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"inlinecms/internal/models"
)

// TransitionLogStore handles the element transition log.
type TransitionLogStore struct {
	db *sql.DB
}

// NewTransitionLogStore creates a new TransitionLogStore.
func NewTransitionLogStore(db *sql.DB) *TransitionLogStore {
	return &TransitionLogStore{db: db}
}

// Log records a transition.
func (s *TransitionLogStore) Log(ctx context.Context, rec models.TransitionRecord) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO element_transitions (element_id, page_key, element_key, from_status, to_status, actor, transitioned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ElementID, rec.PageKey, rec.ElementKey, rec.From, rec.To, rec.Actor, rec.TransitionedAt)
	if err != nil {
		// Best-effort: the transition itself already committed.
		slog.Warn("failed to log transition",
			"page", rec.PageKey,
			"element", rec.ElementKey,
			"from", rec.From,
			"to", rec.To,
			"error", err,
		)
		return
	}
	slog.Debug("transition logged",
		"page", rec.PageKey,
		"element", rec.ElementKey,
		"from", rec.From,
		"to", rec.To,
	)
}

// Recent returns the most recent transitions for a page, newest first.
func (s *TransitionLogStore) Recent(ctx context.Context, pageKey string, limit int) ([]models.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, element_id, page_key, element_key, from_status, to_status, actor, transitioned_at
		FROM element_transitions
		WHERE page_key = $1
		ORDER BY transitioned_at DESC, id DESC
		LIMIT $2
	`, pageKey, limit)
	if err != nil {
		return nil, wrap("recent transitions", err)
	}
	defer rows.Close()

	var entries []models.TransitionRecord
	for rows.Next() {
		var e models.TransitionRecord
		if err := rows.Scan(&e.ID, &e.ElementID, &e.PageKey, &e.ElementKey,
			&e.From, &e.To, &e.Actor, &e.TransitionedAt); err != nil {
			return nil, wrap("recent transitions", fmt.Errorf("scan transition: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent transitions", err)
	}
	return entries, nil
}
