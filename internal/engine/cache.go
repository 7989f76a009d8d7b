// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// cache.go provides the in-memory cache for compiled page layouts (L1).
// Layouts are keyed by page key and version, so a layout update, which
// bumps the version, automatically produces a cache miss.
package engine

import (
	"html/template"
	"log/slog"
	"sync"
)

type cacheKey struct {
	page    string
	version int
}

// templateCache is a concurrency-safe in-memory cache of compiled layouts.
type templateCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*template.Template
}

func newTemplateCache() *templateCache {
	return &templateCache{
		entries: make(map[cacheKey]*template.Template),
	}
}

// get retrieves a compiled layout. Returns nil on miss.
func (c *templateCache) get(page string, version int) *template.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[cacheKey{page: page, version: version}]
}

// put stores a compiled layout, dropping older versions of the same page.
func (c *templateCache) put(page string, version int, tmpl *template.Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.page == page && k.version != version {
			delete(c.entries, k)
		}
	}
	c.entries[cacheKey{page: page, version: version}] = tmpl
	slog.Debug("layout cached", "page", page, "version", version, "size", len(c.entries))
}

// invalidate removes all cached versions for a page.
func (c *templateCache) invalidate(page string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.page == page {
			delete(c.entries, k)
		}
	}
	slog.Debug("layout cache invalidated", "page", page)
}

// invalidateAll clears the entire cache.
func (c *templateCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*template.Template)
	slog.Debug("layout cache fully cleared")
}

func (c *templateCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
