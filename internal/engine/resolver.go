// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"log/slog"

	"inlinecms/internal/editor"
	"inlinecms/internal/models"
	"inlinecms/internal/preview"
)

// Resolver supplies element values for one page render in one language.
// It reports false when the layout's fallback should be used.
type Resolver interface {
	Resolve(elementKey string, typ models.ElementType) (models.Payload, bool)
}

func index(elements []*models.ContentElement) map[string]*models.ContentElement {
	m := make(map[string]*models.ContentElement, len(elements))
	for _, el := range elements {
		m[el.ElementKey] = el
	}
	return m
}

func typeMatches(el *models.ContentElement, typ models.ElementType) bool {
	if el.Type != typ {
		slog.Debug("element type differs from layout, using fallback",
			"page", el.PageKey, "element", el.ElementKey, "stored", el.Type, "layout", typ)
		return false
	}
	return true
}

// PublishedResolver serves the public site: only published, non-blank
// values in the requested language are used.
type PublishedResolver struct {
	lang     string
	elements map[string]*models.ContentElement
}

// NewPublishedResolver builds a public resolver over persisted elements.
func NewPublishedResolver(elements []*models.ContentElement, lang string) *PublishedResolver {
	return &PublishedResolver{lang: lang, elements: index(elements)}
}

func (r *PublishedResolver) Resolve(elementKey string, typ models.ElementType) (models.Payload, bool) {
	el, ok := r.elements[elementKey]
	if !ok || !el.IsPublished() || !typeMatches(el, typ) {
		return models.Payload{}, false
	}
	p, ok := el.Value(r.lang)
	if !ok || Blank(typ, p) {
		return models.Payload{}, false
	}
	return p, true
}

// EditorResolver reads the editor's current view: local edits first,
// then persisted values in any status.
type EditorResolver struct {
	store *editor.Store
	page  string
	lang  string
}

// NewEditorResolver builds a resolver over an editor store.
func NewEditorResolver(store *editor.Store, pageKey, lang string) *EditorResolver {
	return &EditorResolver{store: store, page: pageKey, lang: lang}
}

func (r *EditorResolver) Resolve(elementKey string, typ models.ElementType) (models.Payload, bool) {
	if known, ok := r.store.TypeOf(r.page, elementKey); ok && known != typ {
		return models.Payload{}, false
	}
	return r.store.Lookup(editor.Key{Page: r.page, Element: elementKey, Lang: r.lang})
}

// PreviewResolver serves the full-page preview: the override channel
// snapshot first, then the latest persisted value regardless of status.
type PreviewResolver struct {
	lang      string
	overrides map[string]preview.Override
	elements  map[string]*models.ContentElement
}

// NewPreviewResolver builds a preview resolver.
func NewPreviewResolver(overrides map[string]preview.Override, elements []*models.ContentElement, lang string) *PreviewResolver {
	return &PreviewResolver{lang: lang, overrides: overrides, elements: index(elements)}
}

func (r *PreviewResolver) Resolve(elementKey string, typ models.ElementType) (models.Payload, bool) {
	if o, ok := r.overrides[preview.FieldKey(elementKey, r.lang)]; ok && o.Type == typ {
		return o.Payload, true
	}
	el, ok := r.elements[elementKey]
	if !ok || !typeMatches(el, typ) {
		return models.Payload{}, false
	}
	return el.Value(r.lang)
}

// FallbackResolver never resolves, so a layout renders its defaults.
type FallbackResolver struct{}

func (FallbackResolver) Resolve(string, models.ElementType) (models.Payload, bool) {
	return models.Payload{}, false
}
