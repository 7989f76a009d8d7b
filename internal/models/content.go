// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ElementType determines the payload shape of a content element and the
// editor affordance used for it.
type ElementType string

const (
	ElementTypeText     ElementType = "text"
	ElementTypeRichText ElementType = "rich_text"
	ElementTypeImage    ElementType = "image"
	ElementTypeLink     ElementType = "link"
	ElementTypeButton   ElementType = "button"
)

// ElementTypes lists every supported element type.
var ElementTypes = []ElementType{
	ElementTypeText,
	ElementTypeRichText,
	ElementTypeImage,
	ElementTypeLink,
	ElementTypeButton,
}

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	for _, known := range ElementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ContentStatus represents the publishing state of a content element.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusArchived  ContentStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusDraft, ContentStatusPublished, ContentStatusArchived:
		return true
	}
	return false
}

// BodyFormat identifies how rich_text source is authored.
type BodyFormat string

const (
	BodyFormatHTML     BodyFormat = "html"
	BodyFormatMarkdown BodyFormat = "markdown"
)

// Payload is the content of one element in one language. Which fields are
// meaningful depends on the element type:
//
//	text      Text
//	rich_text HTML (+ Format)
//	image     URL, Alt
//	link      URL (target), Text (optional label)
//	button    URL (target), Text (label)
type Payload struct {
	Text   string     `json:"text,omitempty"`
	HTML   string     `json:"html,omitempty"`
	Format BodyFormat `json:"format,omitempty"`
	URL    string     `json:"url,omitempty"`
	Alt    string     `json:"alt,omitempty"`
}

// Equal reports whether two payloads carry identical content.
func (p Payload) Equal(other Payload) bool {
	return p.normalizedFormat() == other.normalizedFormat() &&
		p.Text == other.Text && p.HTML == other.HTML &&
		p.URL == other.URL && p.Alt == other.Alt
}

func (p Payload) normalizedFormat() BodyFormat {
	if p.Format == "" {
		return BodyFormatHTML
	}
	return p.Format
}

// IsBlank reports whether the payload has no renderable content for the
// given element type. Rich text is considered blank when it has no text
// once tags are stripped; callers that need sanitization-aware checks
// should sanitize first.
func (p Payload) IsBlank(t ElementType) bool {
	switch t {
	case ElementTypeText:
		return strings.TrimSpace(p.Text) == ""
	case ElementTypeRichText:
		return strings.TrimSpace(StripTags(p.HTML)) == ""
	case ElementTypeImage, ElementTypeLink, ElementTypeButton:
		return strings.TrimSpace(p.URL) == ""
	}
	return true
}

// StripTags removes anything between angle brackets. It is a cheap text
// extraction for emptiness checks, not a sanitizer.
func StripTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(b.String(), "&nbsp;", " ")
}

// ContentElement is the smallest addressable unit of overridable page
// content, identified by (PageKey, ElementKey).
type ContentElement struct {
	ID          uuid.UUID          `json:"id"`
	PageKey     string             `json:"page_key"`
	ElementKey  string             `json:"element_key"`
	Type        ElementType        `json:"element_type"`
	Content     map[string]Payload `json:"content"`
	Status      ContentStatus      `json:"status"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
	UpdatedBy   string             `json:"updated_by,omitempty"`
}

// IsPublished returns true if the element is in published status.
func (e *ContentElement) IsPublished() bool {
	return e.Status == ContentStatusPublished
}

// Value returns the payload for lang and whether one exists.
func (e *ContentElement) Value(lang string) (Payload, bool) {
	if e == nil || e.Content == nil {
		return Payload{}, false
	}
	p, ok := e.Content[lang]
	return p, ok
}

// Clone returns a deep copy of the element.
func (e *ContentElement) Clone() *ContentElement {
	if e == nil {
		return nil
	}
	copied := *e
	if e.Content != nil {
		copied.Content = make(map[string]Payload, len(e.Content))
		for lang, p := range e.Content {
			copied.Content[lang] = p
		}
	}
	if e.PublishedAt != nil {
		at := *e.PublishedAt
		copied.PublishedAt = &at
	}
	return &copied
}

// TransitionRecord is an audit entry for one publication state change.
type TransitionRecord struct {
	ID             int64         `json:"id"`
	ElementID      uuid.UUID     `json:"element_id"`
	PageKey        string        `json:"page_key"`
	ElementKey     string        `json:"element_key"`
	From           ContentStatus `json:"from"`
	To             ContentStatus `json:"to"`
	Actor          string        `json:"actor,omitempty"`
	TransitionedAt time.Time     `json:"transitioned_at"`
}
