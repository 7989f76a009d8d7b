// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package engine renders pages from their html/template layouts. Layouts
// reference content elements through the functions text, rich, image,
// link and button, each taking an element key followed by the fallback
// shown when no value is available. Where values come from is decided
// per render by a Resolver, which is how the public site, the editor and
// the full-page preview share one rendering path.
package engine

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"inlinecms/internal/models"
)

// PageData holds the variables available to a layout and to the document
// shell, e.g. {{.Title}}.
type PageData struct {
	PageKey       string
	Title         string
	Lang          string
	Dir           string
	Year          int
	Preview       bool
	PreviewScript string
	Body          template.HTML
}

// RenderOptions adjusts a single render.
type RenderOptions struct {
	// PreviewScript, when set, marks the render as a preview and loads the
	// preview client from this URL.
	PreviewScript string
}

var shell = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body data-page="{{.PageKey}}"{{if .Preview}} data-preview="true"{{end}}>
{{.Body}}
{{- if .PreviewScript}}
<script src="{{.PreviewScript}}" defer></script>
{{- end}}
</body>
</html>
`))

// Engine compiles page layouts and renders them. Compiled layouts are kept
// in an in-memory cache (L1) keyed by page key and version.
type Engine struct {
	cache *templateCache
}

// New creates a rendering engine with an empty L1 cache.
func New() *Engine {
	return &Engine{cache: newTemplateCache()}
}

// InvalidatePage drops the compiled layout of one page.
func (e *Engine) InvalidatePage(pageKey string) {
	e.cache.invalidate(pageKey)
}

// InvalidateAll clears the L1 cache.
func (e *Engine) InvalidateAll() {
	e.cache.invalidateAll()
}

// ValidateLayout reports whether layout compiles.
func (e *Engine) ValidateLayout(layout string) error {
	if _, err := parseLayout("validate", layout); err != nil {
		return err
	}
	return nil
}

// Dir returns the text direction for a language.
func Dir(lang string) string {
	switch lang {
	case "ar", "fa", "he", "ur":
		return "rtl"
	}
	return "ltr"
}

// RenderPage renders page in lang, reading element values through r.
func (e *Engine) RenderPage(page *models.ContentPage, lang string, r Resolver, opts RenderOptions) ([]byte, error) {
	if r == nil {
		r = FallbackResolver{}
	}
	compiled, err := e.compiled(page)
	if err != nil {
		return nil, err
	}
	// The cached template is never executed, only its clones.
	tmpl, err := compiled.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone layout %s: %w", page.PageKey, err)
	}
	tmpl.Funcs(elementFuncs(r))

	data := PageData{
		PageKey:       page.PageKey,
		Title:         page.Name(lang),
		Lang:          lang,
		Dir:           Dir(lang),
		Year:          time.Now().Year(),
		Preview:       opts.PreviewScript != "",
		PreviewScript: opts.PreviewScript,
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("execute layout %s: %w", page.PageKey, err)
	}
	data.Body = template.HTML(body.String())

	var out bytes.Buffer
	if err := shell.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("execute shell: %w", err)
	}
	return out.Bytes(), nil
}

func (e *Engine) compiled(page *models.ContentPage) (*template.Template, error) {
	if t := e.cache.get(page.PageKey, page.Version); t != nil {
		return t, nil
	}
	t, err := parseLayout(page.PageKey, page.Layout)
	if err != nil {
		return nil, err
	}
	e.cache.put(page.PageKey, page.Version, t)
	return t, nil
}

func parseLayout(name, layout string) (*template.Template, error) {
	t, err := template.New(name).Funcs(elementFuncs(FallbackResolver{})).Parse(layout)
	if err != nil {
		return nil, fmt.Errorf("compile layout %s: %w", name, err)
	}
	return t, nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// elementFuncs binds the layout functions to a resolver.
func elementFuncs(r Resolver) template.FuncMap {
	render := func(key string, typ models.ElementType, fallback models.Payload) (template.HTML, error) {
		p, ok := r.Resolve(key, typ)
		if !ok {
			p = fallback
		}
		return RenderElement(typ, p)
	}
	return template.FuncMap{
		"text": func(key string, fallback ...string) (template.HTML, error) {
			return render(key, models.ElementTypeText, models.Payload{Text: arg(fallback, 0)})
		},
		"rich": func(key string, fallback ...string) (template.HTML, error) {
			return render(key, models.ElementTypeRichText, models.Payload{HTML: arg(fallback, 0)})
		},
		"image": func(key string, fallback ...string) (template.HTML, error) {
			return render(key, models.ElementTypeImage, models.Payload{URL: arg(fallback, 0), Alt: arg(fallback, 1)})
		},
		"link": func(key string, fallback ...string) (template.HTML, error) {
			return render(key, models.ElementTypeLink, models.Payload{URL: arg(fallback, 0), Text: arg(fallback, 1)})
		},
		"button": func(key string, fallback ...string) (template.HTML, error) {
			return render(key, models.ElementTypeButton, models.Payload{URL: arg(fallback, 0), Text: arg(fallback, 1)})
		},
	}
}
