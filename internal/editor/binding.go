// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package editor

import "inlinecms/internal/models"

// Binding ties one editable element on a page to a Store. Reads fall back
// to the page-supplied default; writes go to the Store, whose subscribers
// take care of persistence and preview.
type Binding struct {
	store    *Store
	key      Key
	typ      models.ElementType
	fallback models.Payload
}

// NewBinding creates a binding for one element language.
func NewBinding(s *Store, key Key, typ models.ElementType, fallback models.Payload) *Binding {
	return &Binding{store: s, key: key, typ: typ, fallback: fallback}
}

// Key returns the bound key.
func (b *Binding) Key() Key { return b.key }

// Type returns the bound element type.
func (b *Binding) Type() models.ElementType { return b.typ }

// Value returns the current value, or the fallback when nothing has been
// persisted or edited.
func (b *Binding) Value() models.Payload {
	if b.store == nil {
		return b.fallback
	}
	return b.store.Get(b.key, b.fallback)
}

// Overridden reports whether a persisted or local value exists.
func (b *Binding) Overridden() bool {
	if b.store == nil {
		return false
	}
	_, ok := b.store.Lookup(b.key)
	return ok
}

// Dirty reports whether the bound value has an unsaved edit.
func (b *Binding) Dirty() bool {
	return b.store != nil && b.store.IsDirty(b.key)
}

// Set forwards a user edit to the store.
func (b *Binding) Set(p models.Payload) (Change, bool, error) {
	return b.store.SetLocal(b.key, b.typ, p)
}

// EditableContent returns the editor view of one element: the current
// value when one exists, otherwise fallback.
func EditableContent(s *Store, pageKey, elementKey string, typ models.ElementType, fallback models.Payload, lang string) models.Payload {
	return NewBinding(s, Key{Page: pageKey, Element: elementKey, Lang: lang}, typ, fallback).Value()
}
