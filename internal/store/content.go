// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"inlinecms/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ElementStore handles content element persistence. Each element is one
// content_elements row plus one content_element_values row per language.
type ElementStore struct {
	db *sql.DB
}

// NewElementStore creates a new ElementStore with the given database connection.
func NewElementStore(db *sql.DB) *ElementStore {
	return &ElementStore{db: db}
}

const selectElements = `
	SELECT e.id, e.page_key, e.element_key, e.element_type, e.status,
	       e.published_at, e.updated_at, e.updated_by, v.lang, v.payload
	FROM content_elements e
	LEFT JOIN content_element_values v ON v.element_id = e.id
`

// FetchPage returns all elements of a page ordered by element key.
func (s *ElementStore) FetchPage(ctx context.Context, pageKey string) ([]*models.ContentElement, error) {
	rows, err := s.db.QueryContext(ctx, selectElements+`
		WHERE e.page_key = $1
		ORDER BY e.element_key, v.lang
	`, pageKey)
	if err != nil {
		return nil, wrap("fetch page", err)
	}
	defer rows.Close()

	elements, err := scanElements(rows)
	if err != nil {
		return nil, wrap("fetch page", err)
	}
	if elements == nil {
		elements = []*models.ContentElement{}
	}
	return elements, nil
}

// FetchElement retrieves one element with all its languages. Returns nil
// if not found.
func (s *ElementStore) FetchElement(ctx context.Context, pageKey, elementKey string) (*models.ContentElement, error) {
	el, err := fetchElement(ctx, s.db, pageKey, elementKey)
	if err != nil {
		return nil, wrap("fetch element", err)
	}
	return el, nil
}

func fetchElement(ctx context.Context, q querier, pageKey, elementKey string) (*models.ContentElement, error) {
	rows, err := q.QueryContext(ctx, selectElements+`
		WHERE e.page_key = $1 AND e.element_key = $2
		ORDER BY v.lang
	`, pageKey, elementKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	elements, err := scanElements(rows)
	if err != nil || len(elements) == 0 {
		return nil, err
	}
	return elements[0], nil
}

// scanElements folds the element/value join into elements, preserving
// row order.
func scanElements(rows *sql.Rows) ([]*models.ContentElement, error) {
	var elements []*models.ContentElement
	byID := make(map[uuid.UUID]*models.ContentElement)
	for rows.Next() {
		var (
			e       models.ContentElement
			lang    sql.NullString
			payload []byte
		)
		if err := rows.Scan(
			&e.ID, &e.PageKey, &e.ElementKey, &e.Type, &e.Status,
			&e.PublishedAt, &e.UpdatedAt, &e.UpdatedBy, &lang, &payload,
		); err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		el, ok := byID[e.ID]
		if !ok {
			e.Content = make(map[string]models.Payload)
			el = &e
			byID[e.ID] = el
			elements = append(elements, el)
		}
		if lang.Valid {
			var p models.Payload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("decode payload %s/%s/%s: %w", el.PageKey, el.ElementKey, lang.String, err)
			}
			el.Content[lang.String] = p
		}
	}
	return elements, rows.Err()
}

// UpsertElement writes one language value, creating the element as a
// draft when it does not exist yet.
func (s *ElementStore) UpsertElement(ctx context.Context, in UpsertInput) (*models.ContentElement, error) {
	const op = "upsert element"

	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, Permanent(op, fmt.Errorf("encode payload: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer tx.Rollback()

	var (
		id         uuid.UUID
		storedType models.ElementType
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO content_elements (page_key, element_key, element_type, status, published_at, updated_by)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'draft'),
		        CASE WHEN $4 = 'published' THEN NOW() END, $5)
		ON CONFLICT (page_key, element_key) DO UPDATE SET
			status = COALESCE(NULLIF($4, ''), content_elements.status),
			published_at = CASE
				WHEN $4 = 'published' AND content_elements.status <> 'published' THEN NOW()
				ELSE content_elements.published_at
			END,
			updated_by = $5,
			updated_at = NOW()
		RETURNING id, element_type
	`, in.PageKey, in.ElementKey, in.Type, string(in.Status), in.UpdatedBy).Scan(&id, &storedType)
	if err != nil {
		return nil, wrap(op, translateFK(err))
	}
	if storedType != in.Type {
		return nil, Permanent(op, fmt.Errorf("%w: %s/%s is %s, not %s",
			ErrTypeMismatch, in.PageKey, in.ElementKey, storedType, in.Type))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_element_values (element_id, lang, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (element_id, lang) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`, id, in.Lang, payload)
	if err != nil {
		return nil, wrap(op, err)
	}

	el, err := fetchElement(ctx, tx, in.PageKey, in.ElementKey)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, err)
	}
	return el, nil
}

// SetStatus applies a publication transition. published_at is only
// written on a transition into published.
func (s *ElementStore) SetStatus(ctx context.Context, ch StatusChange) (*models.ContentElement, error) {
	const op = "set status"

	at := ch.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE content_elements SET
			status = $1,
			published_at = CASE WHEN $1 = 'published' THEN $2 ELSE published_at END,
			updated_by = $3,
			updated_at = NOW()
		WHERE page_key = $4 AND element_key = $5 AND status = $6
	`, ch.To, at, ch.Actor, ch.PageKey, ch.ElementKey, ch.From)
	if err != nil {
		return nil, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrap(op, err)
	}

	el, err := fetchElement(ctx, tx, ch.PageKey, ch.ElementKey)
	if err != nil {
		return nil, wrap(op, err)
	}
	if n == 0 {
		if el == nil {
			return nil, Permanent(op, fmt.Errorf("%w: %s/%s", ErrNotFound, ch.PageKey, ch.ElementKey))
		}
		return nil, Permanent(op, fmt.Errorf("%w: %s/%s is %s, expected %s",
			ErrStatusConflict, ch.PageKey, ch.ElementKey, el.Status, ch.From))
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, err)
	}
	return el, nil
}

// ReplaceElements overwrites the listed elements of a page in a single
// transaction. Elements not listed are left untouched.
func (s *ElementStore) ReplaceElements(ctx context.Context, pageKey string, elements []*models.ContentElement, actor string) error {
	const op = "replace elements"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	defer tx.Rollback()

	for _, el := range elements {
		var id uuid.UUID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO content_elements (page_key, element_key, element_type, status, published_at, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (page_key, element_key) DO UPDATE SET
				element_type = EXCLUDED.element_type,
				status = EXCLUDED.status,
				published_at = EXCLUDED.published_at,
				updated_by = EXCLUDED.updated_by,
				updated_at = NOW()
			RETURNING id
		`, pageKey, el.ElementKey, el.Type, el.Status, el.PublishedAt, actor).Scan(&id)
		if err != nil {
			return wrap(op, translateFK(err))
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM content_element_values WHERE element_id = $1`, id); err != nil {
			return wrap(op, err)
		}
		for lang, p := range el.Content {
			payload, err := json.Marshal(p)
			if err != nil {
				return Permanent(op, fmt.Errorf("encode payload: %w", err))
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_element_values (element_id, lang, payload)
				VALUES ($1, $2, $3)
			`, id, lang, payload); err != nil {
				return wrap(op, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap(op, err)
	}
	return nil
}

// translateFK maps a missing content_pages row to ErrUnknownPage.
func translateFK(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Permanent("write element", fmt.Errorf("%w: %s", ErrUnknownPage, pgErr.Detail))
	}
	return err
}
