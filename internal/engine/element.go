// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"inlinecms/internal/markdown"
	"inlinecms/internal/models"
	"inlinecms/internal/sanitize"
)

// RenderElement renders one element value the way every rendering path
// does: text is escaped, rich text is converted from Markdown when needed
// and always sanitized, and URLs with unsafe schemes are dropped.
func RenderElement(typ models.ElementType, p models.Payload) (template.HTML, error) {
	esc := template.HTMLEscapeString
	switch typ {
	case models.ElementTypeText:
		return template.HTML(esc(p.Text)), nil

	case models.ElementTypeRichText:
		source, err := richSource(p)
		if err != nil {
			slog.Warn("markdown conversion failed, rendering source as text", "error", err)
			return template.HTML(esc(source)), nil
		}
		return sanitize.Trusted(source), nil

	case models.ElementTypeImage:
		src := sanitize.URL(p.URL)
		if src == "" {
			return "", nil
		}
		return template.HTML(fmt.Sprintf(`<img src="%s" alt="%s">`, esc(src), esc(p.Alt))), nil

	case models.ElementTypeLink:
		return anchor("", p), nil

	case models.ElementTypeButton:
		return anchor("button", p), nil
	}
	return "", fmt.Errorf("render element: unknown type %q", typ)
}

// Blank reports whether p renders nothing visible. Rich text is judged on
// the converted and sanitized HTML that RenderElement writes, so Markdown
// made only of stripped markup is blank.
func Blank(typ models.ElementType, p models.Payload) bool {
	if typ == models.ElementTypeRichText {
		source, err := richSource(p)
		if err != nil {
			return strings.TrimSpace(source) == ""
		}
		p.HTML = sanitize.HTML(source)
	}
	return p.IsBlank(typ)
}

// richSource returns the HTML for a rich_text payload, converting Markdown.
// On a conversion error the raw source is returned with the error.
func richSource(p models.Payload) (string, error) {
	if p.Format != models.BodyFormatMarkdown {
		return p.HTML, nil
	}
	converted, err := markdown.ToHTML(p.HTML)
	if err != nil {
		return p.HTML, err
	}
	return converted, nil
}

func anchor(class string, p models.Payload) template.HTML {
	esc := template.HTMLEscapeString
	href := sanitize.URL(p.URL)
	label := p.Text
	if strings.TrimSpace(label) == "" {
		label = p.URL
	}
	var b strings.Builder
	b.WriteString("<a")
	if class != "" {
		fmt.Fprintf(&b, ` class="%s" role="button"`, class)
	}
	if href != "" {
		fmt.Fprintf(&b, ` href="%s"`, esc(href))
	}
	b.WriteString(">")
	b.WriteString(esc(label))
	b.WriteString("</a>")
	return template.HTML(b.String())
}
