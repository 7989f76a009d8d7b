// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"html"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inlinecms/internal/cache"
	"inlinecms/internal/engine"
	"inlinecms/internal/models"
	"inlinecms/internal/preview"
	"inlinecms/internal/slug"
	"inlinecms/internal/store"
)

// PreviewScript is the URL of the embedded preview client.
const PreviewScript = "/static/preview.js"

// PageCache stores rendered public pages. A nil PageCache disables caching.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, html []byte)
}

// Public groups handlers for rendered pages: the public site, which shows
// published content only, and the preview surface, which shows unsaved
// edits from the override channel.
type Public struct {
	engine    *engine.Engine
	pages     store.PageRepository
	content   store.ContentRepository
	overrides preview.Overrides
	pageCache PageCache
	langs     Languages
}

// NewPublic creates a new Public handler group. pageCache may be nil if
// Valkey is not configured.
func NewPublic(eng *engine.Engine, pages store.PageRepository, content store.ContentRepository, overrides preview.Overrides, pageCache PageCache, langs Languages) *Public {
	return &Public{
		engine:    eng,
		pages:     pages,
		content:   content,
		overrides: overrides,
		pageCache: pageCache,
		langs:     langs,
	}
}

// Page renders a public page. Unpublished, blank or mistyped element
// values render their template fallback.
func (p *Public) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageKey := chi.URLParam(r, "pageKey")
	if !slug.Valid(pageKey) {
		http.NotFound(w, r)
		return
	}
	lang, err := p.langs.FromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cacheKey := cache.PageKey(pageKey, lang)
	if p.pageCache != nil {
		if cached, ok := p.pageCache.Get(ctx, cacheKey); ok {
			writeHTML(w, http.StatusOK, cached)
			return
		}
	}

	page, ok := p.findPage(w, r, pageKey)
	if !ok {
		return
	}
	if !page.IsActive {
		http.NotFound(w, r)
		return
	}

	elements, err := p.content.FetchPage(ctx, pageKey)
	if err != nil {
		slog.Error("fetch page elements failed", "error", err, "page", pageKey)
		http.Error(w, "Internal Server Error", statusFor(err))
		return
	}

	rendered, err := p.engine.RenderPage(page, lang, engine.NewPublishedResolver(elements, lang), engine.RenderOptions{})
	if err != nil {
		slog.Error("render page failed", "error", err, "page", pageKey, "lang", lang)
		p.renderFailed(w, page, lang)
		return
	}

	if p.pageCache != nil {
		p.pageCache.Set(ctx, cacheKey, rendered)
	}
	writeHTML(w, http.StatusOK, rendered)
}

// Preview renders a page for a preview surface: override channel values
// first, then persisted values in any status. The response is never
// cached and loads the preview client.
func (p *Public) Preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageKey := chi.URLParam(r, "pageKey")
	if !slug.Valid(pageKey) {
		http.NotFound(w, r)
		return
	}
	lang, err := p.langs.FromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, ok := p.findPage(w, r, pageKey)
	if !ok {
		return
	}

	elements, err := p.content.FetchPage(ctx, pageKey)
	if err != nil {
		slog.Error("fetch page elements failed", "error", err, "page", pageKey)
		http.Error(w, "Internal Server Error", statusFor(err))
		return
	}

	// Without the channel the preview still shows persisted content.
	overrides, err := p.overrides.Snapshot(ctx, preview.ChannelKey(pageKey))
	if err != nil {
		slog.Warn("read preview overrides failed", "error", err, "page", pageKey)
		overrides = nil
	}

	resolver := engine.NewPreviewResolver(overrides, elements, lang)
	rendered, err := p.engine.RenderPage(page, lang, resolver, engine.RenderOptions{PreviewScript: PreviewScript})
	if err != nil {
		slog.Error("render preview failed", "error", err, "page", pageKey, "lang", lang)
		p.renderFailed(w, page, lang)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeHTML(w, http.StatusOK, rendered)
}

func (p *Public) findPage(w http.ResponseWriter, r *http.Request, pageKey string) (*models.ContentPage, bool) {
	page, err := p.pages.FindPage(r.Context(), pageKey)
	if err != nil {
		slog.Error("find page failed", "error", err, "page", pageKey)
		http.Error(w, "Internal Server Error", statusFor(err))
		return nil, false
	}
	if page == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return page, true
}

// renderFailed writes a safe error page when the layout fails. Element
// content is never written unescaped here.
func (p *Public) renderFailed(w http.ResponseWriter, page *models.ContentPage, lang string) {
	title := html.EscapeString(page.Name(lang))
	writeHTML(w, http.StatusInternalServerError, []byte(`<!DOCTYPE html>
<html lang="`+html.EscapeString(lang)+`" dir="`+engine.Dir(lang)+`"><head><meta charset="utf-8"><title>`+title+`</title></head>
<body>
<h1>`+title+`</h1>
<p>This page could not be rendered. Please check its layout.</p>
</body></html>`))
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
