package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/models"
	"inlinecms/internal/transfer"
)

// ---------------------------------------------------------------------------
// Pages and elements
// ---------------------------------------------------------------------------

func TestPagesList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/pages/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pages []models.ContentPage `json:"pages"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Pages, 2)
	assert.Equal(t, "services", resp.Pages[0].PageKey)
}

func TestElementsList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/pages/services/elements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Page     models.ContentPage       `json:"page"`
		Elements []models.ContentElement `json:"elements"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Elements, 2)
	assert.Equal(t, "hero_title", resp.Elements[0].ElementKey, "elements ordered by key")
	assert.Equal(t, "tagline", resp.Elements[1].ElementKey)
	assert.Equal(t, models.ContentStatusDraft, resp.Elements[1].Status)
}

func TestElementsList_UnknownPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/admin/pages/nowhere/elements", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---------------------------------------------------------------------------
// Publication transitions
// ---------------------------------------------------------------------------

func TestElementTransition_Publish(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/services", "") // warm the cache

	rec := env.do(t, http.MethodPost, "/admin/pages/services/elements/tagline/transition", `{"status":"published"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var el models.ContentElement
	decodeBody(t, rec, &el)
	assert.Equal(t, models.ContentStatusPublished, el.Status)
	assert.Equal(t, testEditor, el.UpdatedBy)
	assert.Len(t, env.Repo.Transitions("services"), 1, "transition should be logged")

	page := env.do(t, http.MethodGet, "/services", "")
	assert.Contains(t, page.Body.String(), "مسودة", "published tagline appears after the cache is invalidated")
}

func TestElementTransition_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"published back to draft", "/admin/pages/services/elements/hero_title/transition", `{"status":"draft"}`, http.StatusConflict},
		{"unknown status", "/admin/pages/services/elements/tagline/transition", `{"status":"deleted"}`, http.StatusUnprocessableEntity},
		{"missing status", "/admin/pages/services/elements/tagline/transition", `{}`, http.StatusUnprocessableEntity},
		{"unknown field", "/admin/pages/services/elements/tagline/transition", `{"state":"draft"}`, http.StatusBadRequest},
		{"malformed body", "/admin/pages/services/elements/tagline/transition", `{`, http.StatusBadRequest},
		{"unknown element", "/admin/pages/services/elements/missing/transition", `{"status":"published"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestElementTransition_PublishBlank(t *testing.T) {
	env := newTestEnv(t)
	err := env.Repo.ReplaceElements(context.Background(), "services", []*models.ContentElement{{
		ElementKey: "intro",
		Type:       models.ElementTypeRichText,
		Status:     models.ContentStatusDraft,
		Content:    map[string]models.Payload{"ar": {HTML: "<script>x</script>"}},
	}}, "seed")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/admin/pages/services/elements/intro/transition", `{"status":"published"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "content.ar", resp.Issues[0].Field)
	assert.Equal(t, models.ContentStatusDraft, env.element(t, "intro").Status, "status after failed publish")
}

func TestElementTransition_PublishBlankMarkdown(t *testing.T) {
	env := newTestEnv(t)
	err := env.Repo.ReplaceElements(context.Background(), "services", []*models.ContentElement{{
		ElementKey: "intro",
		Type:       models.ElementTypeRichText,
		Status:     models.ContentStatusDraft,
		Content:    map[string]models.Payload{"ar": {HTML: "<script>alert(1)</script>", Format: models.BodyFormatMarkdown}},
	}}, "seed")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/admin/pages/services/elements/intro/transition", `{"status":"published"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, models.ContentStatusDraft, env.element(t, "intro").Status)
}

// ---------------------------------------------------------------------------
// Import and export
// ---------------------------------------------------------------------------

func TestPageExport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/pages/services/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="services.json"`, rec.Header().Get("Content-Disposition"))
	var doc transfer.Document
	decodeBody(t, rec, &doc)
	assert.Equal(t, "services", doc.Page)
	assert.Len(t, doc.Elements, 2)
}

func TestPageImport(t *testing.T) {
	env := newTestEnv(t)

	body := `{"version":1,"page":"services","elements":[
		{"element_key":"tagline","element_type":"text","status":"published",
		 "content":{"ar":{"text":"رعاية لكل أسرة"},"en":{"text":"Care for all"}}}
	]}`
	rec := env.do(t, http.MethodPost, "/admin/pages/services/import", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res transfer.Result
	decodeBody(t, rec, &res)
	assert.Equal(t, []string{"tagline"}, res.Replaced)

	el := env.element(t, "tagline")
	assert.Equal(t, models.ContentStatusPublished, el.Status)
	assert.Equal(t, "رعاية لكل أسرة", el.Content["ar"].Text)
	assert.Equal(t, "خدماتنا الطبية", env.element(t, "hero_title").Content["ar"].Text,
		"elements missing from the document are left unchanged")
}

func TestPageImport_RejectsWholeDocument(t *testing.T) {
	env := newTestEnv(t)

	body := `{"version":1,"page":"services","elements":[
		{"element_key":"tagline","element_type":"text","status":"draft","content":{"ar":{"text":"جديد"}}},
		{"element_key":"hero_title","element_type":"text","status":"published","content":{"en":{"text":"No arabic"}}}
	]}`
	rec := env.do(t, http.MethodPost, "/admin/pages/services/import", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Issues, "expected field issues in the response")
	assert.Equal(t, "مسودة", env.element(t, "tagline").Content["ar"].Text, "a rejected import writes no element")
}

func TestPageImport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown page", "/admin/pages/nowhere/import", `{"version":1,"page":"nowhere","elements":[]}`, http.StatusNotFound},
		{"wrong version", "/admin/pages/services/import", `{"version":2,"page":"services","elements":[]}`, http.StatusUnprocessableEntity},
		{"not json", "/admin/pages/services/import", `elements`, http.StatusUnprocessableEntity},
		{"page mismatch", "/admin/pages/services/import", `{"version":1,"page":"midwifery","elements":[]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

// ---------------------------------------------------------------------------
// Layouts and render caches
// ---------------------------------------------------------------------------

func TestPageUpsert_ChangedLayoutDropsCaches(t *testing.T) {
	env := newTestEnv(t)
	first := env.do(t, http.MethodGet, "/services", "")
	require.Equal(t, http.StatusOK, first.Code)
	require.Contains(t, first.Body.String(), "<h1>خدماتنا الطبية</h1>")

	rec := env.do(t, http.MethodPut, "/admin/pages/services",
		`{"display_name":{"ar":"خدماتنا"},"is_active":true,"layout":"<h2>{{text \"hero_title\" \"Our Services\"}}</h2>"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page models.ContentPage
	decodeBody(t, rec, &page)
	assert.Equal(t, 2, page.Version)

	_, cached := env.PageCache.Get(context.Background(), "services:ar")
	assert.False(t, cached, "saving a layout drops the cached renders")

	second := env.do(t, http.MethodGet, "/services", "")
	assert.Contains(t, second.Body.String(), "<h2>خدماتنا الطبية</h2>")
	assert.NotContains(t, second.Body.String(), "<h1>")
}

func TestPageUpsert_CreatesPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/admin/pages/nursing",
		`{"display_name":{"en":"Nursing"},"is_active":true,"display_order":2,"layout":"<h1>{{text \"title\" \"Nursing\"}}</h1>"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := env.do(t, http.MethodGet, "/nursing", "")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "<h1>Nursing</h1>")
}

func TestPageUpsert_RejectsBrokenLayout(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/services", "")

	rec := env.do(t, http.MethodPut, "/admin/pages/services",
		`{"display_name":{"ar":"خدماتنا"},"layout":"{{text \"hero_title\""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "layout")

	stored, err := env.Repo.FindPage(context.Background(), "services")
	require.NoError(t, err)
	assert.Equal(t, servicesLayout, stored.Layout)
	_, cached := env.PageCache.Get(context.Background(), "services:ar")
	assert.True(t, cached, "a rejected layout keeps the cache")
}

func TestPageUpsert_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"bad key", "/admin/pages/BadKey", `{"display_name":{"en":"x"},"layout":"x"}`, http.StatusUnprocessableEntity},
		{"missing layout", "/admin/pages/nursing", `{"display_name":{"en":"x"}}`, http.StatusUnprocessableEntity},
		{"missing name", "/admin/pages/nursing", `{"layout":"x"}`, http.StatusUnprocessableEntity},
		{"unknown field", "/admin/pages/nursing", `{"display_name":{"en":"x"},"layout":"x","theme":"dark"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCacheFlush(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/services", "")
	env.do(t, http.MethodGet, "/services?lang=en", "")
	require.Len(t, env.PageCache.pages, 2)

	rec := env.do(t, http.MethodPost, "/admin/cache/flush", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.PageCache.pages)

	page := env.do(t, http.MethodGet, "/services", "")
	assert.Contains(t, page.Body.String(), "خدماتنا الطبية")
}
