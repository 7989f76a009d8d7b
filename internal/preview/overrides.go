// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package preview

import (
	"context"
	"sync"

	"inlinecms/internal/models"
)

// Override is one unsaved element value published to a preview channel.
type Override struct {
	Element string             `json:"element"`
	Lang    string             `json:"lang"`
	Type    models.ElementType `json:"type"`
	Payload models.Payload     `json:"payload"`
	Token   uint64             `json:"token"`
}

// Field is the key of the override inside its channel.
func (o Override) Field() string {
	return FieldKey(o.Element, o.Lang)
}

// FieldKey builds the in-channel key for an element language.
func FieldKey(element, lang string) string {
	return element + "/" + lang
}

// Overrides is the ephemeral preview-override channel. It is separate
// from the content repository; nothing written here is ever persisted.
type Overrides interface {
	// Put overwrites the element's override. Writers order their own
	// puts; several sessions may share a channel.
	Put(ctx context.Context, channel string, o Override) error
	// Snapshot returns the channel's overrides keyed by Field.
	Snapshot(ctx context.Context, channel string) (map[string]Override, error)
	Clear(ctx context.Context, channel string) error
}

// MemoryOverrides keeps channels in process.
type MemoryOverrides struct {
	mu       sync.RWMutex
	channels map[string]map[string]Override
}

var _ Overrides = (*MemoryOverrides)(nil)

// NewMemoryOverrides returns an empty in-process override channel store.
func NewMemoryOverrides() *MemoryOverrides {
	return &MemoryOverrides{channels: make(map[string]map[string]Override)}
}

func (m *MemoryOverrides) Put(ctx context.Context, channel string, o Override) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channel]
	if !ok {
		ch = make(map[string]Override)
		m.channels[channel] = ch
	}
	ch[o.Field()] = o
	return nil
}

func (m *MemoryOverrides) Snapshot(ctx context.Context, channel string) (map[string]Override, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Override, len(m.channels[channel]))
	for k, v := range m.channels[channel] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryOverrides) Clear(ctx context.Context, channel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channel)
	return nil
}
