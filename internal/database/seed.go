// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"inlinecms/internal/models"
)

// seedPage is a development page and its layout.
type seedPage struct {
	key         string
	names       map[string]string
	description string
	order       int
	layout      string
}

var seedPages = []seedPage{
	{
		key:         "services",
		names:       map[string]string{"ar": "الخدمات", "en": "Services"},
		description: "Student services overview",
		order:       1,
		layout: `<section class="hero">
  <h1>{{text "hero_title" "Our Services"}}</h1>
  <div class="intro">{{rich "hero_intro" "<p>Everything students need, in one place.</p>"}}</div>
  {{image "hero_image" "/static/img/services.jpg" "Campus"}}
  {{button "apply_button" "/apply" "Apply now"}}
</section>
<section class="contact">
  <h2>{{text "contact_title" "Contact us"}}</h2>
  {{link "contact_link" "/contact" "Get in touch"}}
</section>`,
	},
	{
		key:         "midwifery",
		names:       map[string]string{"ar": "القبالة", "en": "Midwifery"},
		description: "Midwifery programme page",
		order:       2,
		layout: `<section class="hero">
  <h1>{{text "hero_title" "Midwifery"}}</h1>
  <div class="body">{{rich "programme_overview" "<p>A four-year programme.</p>"}}</div>
  {{button "brochure_button" "/brochures/midwifery.pdf" "Download brochure"}}
</section>`,
	},
}

// Seed populates the database with the development pages. It only runs
// when no pages exist, so it is safe to call on every start.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM content_pages").Scan(&count); err != nil {
		return fmt.Errorf("seed check pages: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	for _, p := range seedPages {
		names, err := json.Marshal(p.names)
		if err != nil {
			return fmt.Errorf("seed encode names: %w", err)
		}
		_, err = db.Exec(`
			INSERT INTO content_pages (page_key, display_name, description, display_order, layout)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (page_key) DO NOTHING
		`, p.key, names, p.description, p.order, p.layout)
		if err != nil {
			return fmt.Errorf("seed insert page %s: %w", p.key, err)
		}
	}

	slog.Info("database seeded with development pages", "count", len(seedPages))
	return nil
}

// DevPages returns the development pages for the in-memory backend.
func DevPages() []*models.ContentPage {
	out := make([]*models.ContentPage, 0, len(seedPages))
	for _, p := range seedPages {
		out = append(out, &models.ContentPage{
			PageKey:      p.key,
			DisplayName:  p.names,
			Description:  p.description,
			IsActive:     true,
			DisplayOrder: p.order,
			Layout:       p.layout,
		})
	}
	return out
}
