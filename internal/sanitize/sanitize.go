// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package sanitize cleans rich_text HTML before it reaches any rendering
// path outside the editor. It wraps a shared bluemonday policy.
package sanitize

import (
	"html/template"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"inlinecms/internal/models"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()

		// Tables and inline formatting produced by the rich text editor.
		policy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td")
		policy.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
		policy.AllowElements("u", "s", "sub", "sup", "mark")

		// Highlighted code blocks from markdown payloads use classes.
		policy.AllowAttrs("class").OnElements("pre", "code", "span", "table", "th", "td", "tr")
	})
	return policy
}

// HTML removes script, event handlers, javascript: URLs and any element
// not on the allow list.
func HTML(html string) string {
	if html == "" {
		return ""
	}
	return getPolicy().Sanitize(html)
}

// Trusted sanitizes html and marks the result safe for html/template.
func Trusted(html string) template.HTML {
	return template.HTML(HTML(html))
}

// Changed reports whether sanitizing html alters it, meaning it contained
// markup outside the allow list.
func Changed(html string) bool {
	return strings.TrimSpace(HTML(html)) != strings.TrimSpace(html)
}

// Text strips all markup, leaving text content only.
func Text(html string) string {
	if html == "" {
		return ""
	}
	return bluemonday.StrictPolicy().Sanitize(html)
}

var safeSchemes = map[string]bool{"http": true, "https": true, "mailto": true, "tel": true}

// URL returns u trimmed, or "" when it uses a scheme other than http,
// https, mailto or tel. Relative URLs are kept.
func URL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && !safeSchemes[strings.ToLower(parsed.Scheme)] {
		return ""
	}
	return u
}

// Payload cleans a payload before it is persisted. Rich text authored as
// HTML is sanitized; Markdown source is kept and sanitized after
// conversion at render time. URLs with unsafe schemes are cleared.
func Payload(t models.ElementType, p models.Payload) models.Payload {
	switch t {
	case models.ElementTypeRichText:
		if p.Format != models.BodyFormatMarkdown {
			p.HTML = HTML(p.HTML)
		}
	case models.ElementTypeImage, models.ElementTypeLink, models.ElementTypeButton:
		p.URL = URL(p.URL)
	}
	return p
}
