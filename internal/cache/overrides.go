// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"inlinecms/internal/preview"
)

// DefaultPreviewTTL is how long an idle override channel survives.
const DefaultPreviewTTL = 30 * time.Minute

// PreviewOverrides stores each preview channel as a Valkey hash of
// JSON-encoded overrides. Every write slides the channel's TTL, so
// abandoned previews expire on their own.
type PreviewOverrides struct {
	client *redis.Client
	ttl    time.Duration
}

var _ preview.Overrides = (*PreviewOverrides)(nil)

// NewPreviewOverrides creates an override channel store.
func NewPreviewOverrides(client *redis.Client, ttl time.Duration) *PreviewOverrides {
	if ttl == 0 {
		ttl = DefaultPreviewTTL
	}
	return &PreviewOverrides{client: client, ttl: ttl}
}

// Put writes one override and refreshes the channel TTL.
func (p *PreviewOverrides) Put(ctx context.Context, channel string, o preview.Override) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, channel, o.Field(), data)
	pipe.Expire(ctx, channel, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put override %s %s: %w", channel, o.Field(), err)
	}
	return nil
}

// Snapshot returns all overrides in a channel. Undecodable fields are
// skipped.
func (p *PreviewOverrides) Snapshot(ctx context.Context, channel string) (map[string]preview.Override, error) {
	fields, err := p.client.HGetAll(ctx, channel).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot overrides %s: %w", channel, err)
	}
	out := make(map[string]preview.Override, len(fields))
	for field, raw := range fields {
		var o preview.Override
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			slog.Warn("skipping undecodable preview override", "channel", channel, "field", field, "error", err)
			continue
		}
		out[field] = o
	}
	return out, nil
}

// Clear deletes the channel.
func (p *PreviewOverrides) Clear(ctx context.Context, channel string) error {
	if err := p.client.Del(ctx, channel).Err(); err != nil {
		return fmt.Errorf("clear overrides %s: %w", channel, err)
	}
	return nil
}
