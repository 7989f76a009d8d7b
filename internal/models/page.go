// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import "time"

// Built-in content languages. More can be enabled through configuration.
const (
	LangArabic  = "ar"
	LangEnglish = "en"
)

// ContentPage is a logical page whose elements can be overridden. The
// Layout is an html/template source rendered by the engine; Version bumps
// whenever the layout changes so compiled templates are re-parsed.
type ContentPage struct {
	PageKey      string            `json:"page_key"`
	DisplayName  map[string]string `json:"display_name"`
	Description  string            `json:"description,omitempty"`
	IsActive     bool              `json:"is_active"`
	DisplayOrder int               `json:"display_order"`
	Layout       string            `json:"layout,omitempty"`
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Name returns the localized display name, falling back to any available
// name and finally to the page key.
func (p *ContentPage) Name(lang string) string {
	if n := p.DisplayName[lang]; n != "" {
		return n
	}
	for _, n := range p.DisplayName {
		if n != "" {
			return n
		}
	}
	return p.PageKey
}
