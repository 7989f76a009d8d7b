// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"inlinecms/internal/models"
)

// PageStore handles content page persistence.
type PageStore struct {
	db *sql.DB
}

// NewPageStore creates a new PageStore.
func NewPageStore(db *sql.DB) *PageStore {
	return &PageStore{db: db}
}

// ListPages returns all pages ordered by display order, then key.
func (s *PageStore) ListPages(ctx context.Context) ([]*models.ContentPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_key, display_name, description, is_active, display_order,
		       layout, version, created_at, updated_at
		FROM content_pages
		ORDER BY display_order, page_key
	`)
	if err != nil {
		return nil, wrap("list pages", err)
	}
	defer rows.Close()

	var pages []*models.ContentPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, wrap("list pages", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list pages", err)
	}
	return pages, nil
}

// FindPage retrieves a page by key. Returns nil if not found.
func (s *PageStore) FindPage(ctx context.Context, pageKey string) (*models.ContentPage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT page_key, display_name, description, is_active, display_order,
		       layout, version, created_at, updated_at
		FROM content_pages WHERE page_key = $1
	`, pageKey)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find page", err)
	}
	return p, nil
}

// UpsertPage creates or updates a page. The version is bumped whenever
// the layout changes so compiled templates are re-parsed.
func (s *PageStore) UpsertPage(ctx context.Context, p *models.ContentPage) (*models.ContentPage, error) {
	names, err := json.Marshal(p.DisplayName)
	if err != nil {
		return nil, Permanent("upsert page", fmt.Errorf("encode display name: %w", err))
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO content_pages (page_key, display_name, description, is_active, display_order, layout)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (page_key) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			display_order = EXCLUDED.display_order,
			layout = EXCLUDED.layout,
			version = CASE
				WHEN content_pages.layout IS DISTINCT FROM EXCLUDED.layout THEN content_pages.version + 1
				ELSE content_pages.version
			END,
			updated_at = NOW()
		RETURNING page_key, display_name, description, is_active, display_order,
		          layout, version, created_at, updated_at
	`, p.PageKey, names, p.Description, p.IsActive, p.DisplayOrder, p.Layout)
	saved, err := scanPage(row)
	if err != nil {
		return nil, wrap("upsert page", err)
	}
	return saved, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(r rowScanner) (*models.ContentPage, error) {
	var (
		p     models.ContentPage
		names []byte
	)
	if err := r.Scan(
		&p.PageKey, &names, &p.Description, &p.IsActive, &p.DisplayOrder,
		&p.Layout, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(names) > 0 {
		if err := json.Unmarshal(names, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("decode display name: %w", err)
		}
	}
	return &p, nil
}
