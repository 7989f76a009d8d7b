// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package transfer exports a page's elements to a single JSON document and
// imports such documents back. An import is validated completely before
// anything is written, then applied in one repository transaction.
package transfer

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"

	"inlinecms/internal/clock"
	"inlinecms/internal/models"
	"inlinecms/internal/publish"
	"inlinecms/internal/sanitize"
	"inlinecms/internal/slug"
	"inlinecms/internal/store"
	"inlinecms/internal/validation"
)

// DocumentVersion is the document format written by Export.
const DocumentVersion = 1

//go:embed document.schema.json
var schemaSource []byte

var documentSchema = validation.MustCompileSchema("document.json", schemaSource)

// Document is the full configuration of one page.
type Document struct {
	Version    int        `json:"version"`
	Page       string     `json:"page"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
	Elements   []Element  `json:"elements"`
}

// Element is one element with all of its languages.
type Element struct {
	ElementKey  string                    `json:"element_key"`
	Type        models.ElementType        `json:"element_type"`
	Status      models.ContentStatus      `json:"status"`
	PublishedAt *time.Time                `json:"published_at,omitempty"`
	Content     map[string]models.Payload `json:"content"`
}

// rules validates an element against the configured languages.
func (e Element) rules(languages map[string]bool) error {
	return ozzo.ValidateStruct(&e,
		ozzo.Field(&e.ElementKey, ozzo.Required, ozzo.By(func(any) error {
			if !slug.Valid(e.ElementKey) {
				return errors.New("must be lowercase letters, digits, '_' or '-'")
			}
			return nil
		})),
		ozzo.Field(&e.Type, ozzo.Required, ozzo.In(elementTypes()...)),
		ozzo.Field(&e.Status, ozzo.Required, ozzo.In(
			models.ContentStatusDraft, models.ContentStatusPublished, models.ContentStatusArchived)),
		ozzo.Field(&e.Content, ozzo.By(func(any) error {
			var unknown []string
			for lang := range e.Content {
				if !languages[lang] {
					unknown = append(unknown, lang)
				}
			}
			if len(unknown) > 0 {
				sort.Strings(unknown)
				return fmt.Errorf("unsupported languages %v", unknown)
			}
			return nil
		})),
	)
}

func elementTypes() []any {
	out := make([]any, len(models.ElementTypes))
	for i, t := range models.ElementTypes {
		out[i] = t
	}
	return out
}

// Config wires a Service.
type Config struct {
	Languages   []string
	DefaultLang string
	Cache       publish.Invalidator
	Clock       clock.Clock
}

// Service imports and exports page documents.
type Service struct {
	repo        store.ContentRepository
	pages       store.PageRepository
	cache       publish.Invalidator
	clock       clock.Clock
	languages   map[string]bool
	defaultLang string
}

// NewService creates a Service. Languages default to Arabic and English.
func NewService(repo store.ContentRepository, pages store.PageRepository, cfg Config) *Service {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{models.LangArabic, models.LangEnglish}
	}
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = cfg.Languages[0]
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	langs := make(map[string]bool, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[l] = true
	}
	return &Service{
		repo:        repo,
		pages:       pages,
		cache:       cfg.Cache,
		clock:       cfg.Clock,
		languages:   langs,
		defaultLang: cfg.DefaultLang,
	}
}

// Export returns every element of a page with all languages and status.
func (s *Service) Export(ctx context.Context, pageKey string) (*Document, error) {
	if err := s.requirePage(ctx, pageKey); err != nil {
		return nil, err
	}
	elements, err := s.repo.FetchPage(ctx, pageKey)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", pageKey, err)
	}
	now := s.clock.Now().UTC()
	doc := &Document{
		Version:    DocumentVersion,
		Page:       pageKey,
		ExportedAt: &now,
		Elements:   make([]Element, 0, len(elements)),
	}
	for _, el := range elements {
		doc.Elements = append(doc.Elements, Element{
			ElementKey:  el.ElementKey,
			Type:        el.Type,
			Status:      el.Status,
			PublishedAt: el.PublishedAt,
			Content:     el.Content,
		})
	}
	sort.Slice(doc.Elements, func(i, j int) bool {
		return doc.Elements[i].ElementKey < doc.Elements[j].ElementKey
	})
	return doc, nil
}

// Result summarizes an applied import.
type Result struct {
	Page     string   `json:"page"`
	Replaced []string `json:"replaced"`
}

// Import replaces the elements listed in raw. The document is checked
// against the schema, the field rules and the publish rules first; any
// failure rejects the whole document and nothing is written. Elements not
// listed in the document are left as they are.
func (s *Service) Import(ctx context.Context, pageKey string, raw []byte, actor string) (*Result, error) {
	const op = "import"
	if err := s.requirePage(ctx, pageKey); err != nil {
		return nil, err
	}
	if err := documentSchema.ValidateJSON(op, raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, validation.New(op, validation.Issue{Message: "decode document: " + err.Error()})
	}
	if err := s.check(pageKey, &doc); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	elements := make([]*models.ContentElement, 0, len(doc.Elements))
	keys := make([]string, 0, len(doc.Elements))
	for _, in := range doc.Elements {
		el := &models.ContentElement{
			PageKey:    pageKey,
			ElementKey: in.ElementKey,
			Type:       in.Type,
			Status:     in.Status,
			Content:    make(map[string]models.Payload, len(in.Content)),
		}
		for lang, p := range in.Content {
			el.Content[lang] = sanitize.Payload(in.Type, p)
		}
		if in.Status == models.ContentStatusPublished {
			at := now
			if in.PublishedAt != nil {
				at = *in.PublishedAt
			}
			el.PublishedAt = &at
		}
		elements = append(elements, el)
		keys = append(keys, in.ElementKey)
	}

	if err := s.repo.ReplaceElements(ctx, pageKey, elements, actor); err != nil {
		return nil, fmt.Errorf("import %s: %w", pageKey, err)
	}
	if s.cache != nil {
		s.cache.InvalidatePage(ctx, pageKey)
	}
	slog.Info("page imported", "page", pageKey, "elements", len(elements), "actor", actor)
	return &Result{Page: pageKey, Replaced: keys}, nil
}

// check applies the field rules, duplicate detection and publish rules.
func (s *Service) check(pageKey string, doc *Document) error {
	const op = "import"
	var issues []validation.Issue
	if doc.Page != pageKey {
		issues = append(issues, validation.Issue{
			Field:   "page",
			Message: fmt.Sprintf("document is for page %q, not %q", doc.Page, pageKey),
		})
	}

	seen := make(map[string]int, len(doc.Elements))
	for i, in := range doc.Elements {
		prefix := fmt.Sprintf("elements.%d", i)
		if err := in.rules(s.languages); err != nil {
			issues = append(issues, prefixed(prefix, validation.Issues(validation.FromRules(op, err)))...)
			continue
		}
		if first, dup := seen[in.ElementKey]; dup {
			issues = append(issues, validation.Issue{
				Field:   prefix + ".element_key",
				Message: fmt.Sprintf("duplicate of elements.%d", first),
			})
			continue
		}
		seen[in.ElementKey] = i

		if in.Status == models.ContentStatusPublished {
			el := &models.ContentElement{ElementKey: in.ElementKey, Type: in.Type, Content: in.Content}
			if err := publish.ValidateForPublish(el, s.defaultLang); err != nil {
				issues = append(issues, prefixed(prefix, validation.Issues(err))...)
			}
		}
	}
	if len(issues) > 0 {
		return validation.New(op, issues...)
	}
	return nil
}

func prefixed(prefix string, issues []validation.Issue) []validation.Issue {
	out := make([]validation.Issue, len(issues))
	for i, is := range issues {
		is.Field = prefix + "." + is.Field
		out[i] = is
	}
	return out
}

func (s *Service) requirePage(ctx context.Context, pageKey string) error {
	page, err := s.pages.FindPage(ctx, pageKey)
	if err != nil {
		return fmt.Errorf("find page %s: %w", pageKey, err)
	}
	if page == nil {
		return fmt.Errorf("%s: %w", pageKey, store.ErrUnknownPage)
	}
	return nil
}
