// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"inlinecms/internal/engine"
	"inlinecms/internal/middleware"
	"inlinecms/internal/models"
	"inlinecms/internal/publish"
	"inlinecms/internal/slug"
	"inlinecms/internal/store"
	"inlinecms/internal/transfer"
	"inlinecms/internal/validation"
)

// CachePurger drops rendered public pages from the L2 cache.
type CachePurger interface {
	InvalidatePage(ctx context.Context, pageKey string)
	InvalidateAll(ctx context.Context)
}

// Admin groups the editor API for pages, publication and import/export.
type Admin struct {
	pages    store.PageRepository
	content  store.ContentRepository
	machine  *publish.Machine
	transfer *transfer.Service
	engine   *engine.Engine
	purger   CachePurger
}

// NewAdmin creates a new Admin handler group with the given dependencies.
// eng must be the engine that renders public pages. purger may be nil if
// Valkey is not configured.
func NewAdmin(pages store.PageRepository, content store.ContentRepository, machine *publish.Machine, svc *transfer.Service, eng *engine.Engine, purger CachePurger) *Admin {
	return &Admin{
		pages:    pages,
		content:  content,
		machine:  machine,
		transfer: svc,
		engine:   eng,
		purger:   purger,
	}
}

// PagesList returns every page ordered for display.
func (a *Admin) PagesList(w http.ResponseWriter, r *http.Request) {
	pages, err := a.pages.ListPages(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("list pages: %w", err))
		return
	}
	if pages == nil {
		pages = []*models.ContentPage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// PageUpsert creates a page or replaces its settings and layout. The
// layout must compile; a changed layout drops the page's compiled template
// and its cached renders.
func (a *Admin) PageUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageKey := chi.URLParam(r, "pageKey")
	if !slug.Valid(pageKey) {
		writeError(w, r, validation.New("page", validation.Issue{Field: "page_key", Message: "must be lowercase letters, digits, '_' or '-'"}))
		return
	}

	var req pageRequest
	if err := decodeValid(w, r, "page", &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.engine.ValidateLayout(req.Layout); err != nil {
		writeError(w, r, validation.New("page", validation.Issue{Field: "layout", Message: err.Error()}))
		return
	}

	page, err := a.pages.UpsertPage(ctx, &models.ContentPage{
		PageKey:      pageKey,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		IsActive:     req.IsActive,
		DisplayOrder: req.DisplayOrder,
		Layout:       req.Layout,
	})
	if err != nil {
		writeError(w, r, fmt.Errorf("upsert page %s: %w", pageKey, err))
		return
	}

	a.engine.InvalidatePage(pageKey)
	if a.purger != nil {
		a.purger.InvalidatePage(ctx, pageKey)
	}
	slog.Info("page saved", "page", pageKey, "version", page.Version, "editor", middleware.EditorFromCtx(ctx))
	writeJSON(w, http.StatusOK, page)
}

// CacheFlush drops every compiled layout and every cached public render.
func (a *Admin) CacheFlush(w http.ResponseWriter, r *http.Request) {
	a.engine.InvalidateAll()
	if a.purger != nil {
		a.purger.InvalidateAll(r.Context())
	}
	slog.Info("render caches flushed", "editor", middleware.EditorFromCtx(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// ElementsList returns every element of a page with all languages and
// status, for the editing dashboard.
func (a *Admin) ElementsList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageKey := chi.URLParam(r, "pageKey")

	page, err := a.pages.FindPage(ctx, pageKey)
	if err != nil {
		writeError(w, r, fmt.Errorf("find page: %w", err))
		return
	}
	if page == nil {
		writeError(w, r, fmt.Errorf("%s: %w", pageKey, store.ErrUnknownPage))
		return
	}

	elements, err := a.content.FetchPage(ctx, pageKey)
	if err != nil {
		writeError(w, r, fmt.Errorf("fetch page %s: %w", pageKey, err))
		return
	}
	if elements == nil {
		elements = []*models.ContentElement{}
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].ElementKey < elements[j].ElementKey })
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "elements": elements})
}

// ElementTransition moves an element between draft, published and archived.
func (a *Admin) ElementTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeValid(w, r, "transition", &req); err != nil {
		writeError(w, r, err)
		return
	}

	el, err := a.machine.Transition(r.Context(),
		chi.URLParam(r, "pageKey"),
		chi.URLParam(r, "elementKey"),
		req.Status,
		middleware.EditorFromCtx(r.Context()),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// PageExport downloads the full configuration of a page.
func (a *Admin) PageExport(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")
	doc, err := a.transfer.Export(r.Context(), pageKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, pageKey))
	writeJSON(w, http.StatusOK, doc)
}

// PageImport applies a page document. Any validation failure rejects the
// whole document with 422 and nothing is written.
func (a *Admin) PageImport(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, maxImportBody)
	if err != nil {
		writeError(w, r, err)
		return
	}
	editor := middleware.EditorFromCtx(r.Context())
	res, err := a.transfer.Import(r.Context(), chi.URLParam(r, "pageKey"), raw, editor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("page import applied", "page", res.Page, "replaced", len(res.Replaced), "editor", editor)
	writeJSON(w, http.StatusOK, res)
}
