// handler_test.go provides shared test infrastructure for handler tests.
// Handlers run against the in-memory repository and a fake clock, so no
// external services are needed.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/autosave"
	"inlinecms/internal/clock"
	"inlinecms/internal/engine"
	"inlinecms/internal/middleware"
	"inlinecms/internal/models"
	"inlinecms/internal/preview"
	"inlinecms/internal/publish"
	"inlinecms/internal/session"
	"inlinecms/internal/store"
	"inlinecms/internal/transfer"
)

const testEditor = "alice"

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const servicesLayout = `<h1>{{text "hero_title" "Our Services"}}</h1>
<p class="tagline">{{text "tagline" "Care for every family"}}</p>
{{button "cta" "/book" "Book now"}}`

// memoryPageCache records rendered pages for cache assertions.
type memoryPageCache struct {
	mu    sync.Mutex
	pages map[string][]byte
	sets  int
}

func newMemoryPageCache() *memoryPageCache {
	return &memoryPageCache{pages: make(map[string][]byte)}
}

func (c *memoryPageCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.pages[key]
	return b, ok
}

func (c *memoryPageCache) Set(_ context.Context, key string, html []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[key] = html
	c.sets++
}

func (c *memoryPageCache) InvalidatePage(_ context.Context, pageKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.pages {
		if strings.HasPrefix(key, pageKey+":") {
			delete(c.pages, key)
		}
	}
}

func (c *memoryPageCache) InvalidateAll(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.pages)
}

// testEnv holds all dependencies for handler tests.
type testEnv struct {
	Clock     *clock.Fake
	Engine    *engine.Engine
	Repo      *store.Memory
	Overrides *preview.MemoryOverrides
	PageCache *memoryPageCache
	Manager   *session.Manager
	Public    *Public
	Admin     *Admin
	Sessions  *Sessions
	Router    http.Handler
}

// newTestEnv creates a complete test environment with two pages: an active
// "services" page with a published title and a draft tagline, and an
// inactive "midwifery" page.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewFake(testStart)
	repo := store.NewMemory(store.WithClock(clk), store.WithPages(
		&models.ContentPage{
			PageKey:     "services",
			DisplayName: map[string]string{"ar": "خدماتنا", "en": "Services"},
			IsActive:    true,
			Layout:      servicesLayout,
		},
		&models.ContentPage{
			PageKey:      "midwifery",
			DisplayName:  map[string]string{"en": "Midwifery"},
			IsActive:     false,
			DisplayOrder: 1,
			Layout:       `<h1>{{text "title" "Midwifery"}}</h1>`,
		},
	))
	err := repo.ReplaceElements(context.Background(), "services", []*models.ContentElement{
		{
			ElementKey: "hero_title",
			Type:       models.ElementTypeText,
			Status:     models.ContentStatusPublished,
			Content:    map[string]models.Payload{"ar": {Text: "خدماتنا الطبية"}, "en": {Text: "Medical services"}},
		},
		{
			ElementKey: "tagline",
			Type:       models.ElementTypeText,
			Status:     models.ContentStatusDraft,
			Content:    map[string]models.Payload{"ar": {Text: "مسودة"}, "en": {Text: "Draft tagline"}},
		},
	}, "seed")
	require.NoError(t, err, "seed elements")

	overrides := preview.NewMemoryOverrides()
	pageCache := newMemoryPageCache()
	langs := Languages{Supported: []string{"ar", "en"}, Default: "ar"}

	manager := session.NewManager(session.Deps{
		Repo:      repo,
		Pages:     repo,
		Overrides: overrides,
		Cache:     pageCache,
		Clock:     clk,
	}, session.Config{
		Autosave:    autosave.Config{Teardown: autosave.PolicyFlush},
		IdleTimeout: time.Hour,
	})
	t.Cleanup(func() { manager.Close(context.Background()) })

	machine := publish.NewMachine(repo, publish.Config{DefaultLang: "ar", Log: repo, Cache: pageCache, Clock: clk})
	svc := transfer.NewService(repo, repo, transfer.Config{Languages: langs.Supported, DefaultLang: "ar", Cache: pageCache, Clock: clk})

	eng := engine.New()
	env := &testEnv{
		Clock:     clk,
		Engine:    eng,
		Repo:      repo,
		Overrides: overrides,
		PageCache: pageCache,
		Manager:   manager,
		Public:    NewPublic(eng, repo, repo, overrides, pageCache, langs),
		Admin:     NewAdmin(repo, repo, machine, svc, eng, pageCache),
		Sessions:  NewSessions(manager, langs),
	}
	env.Router = env.routes()
	return env
}

// routes mirrors the production route table. The editor comes from the
// X-Test-Editor header so tests can act as different editors.
func (e *testEnv) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				editor := r.Header.Get("X-Test-Editor")
				if editor == "" {
					editor = testEditor
				}
				next.ServeHTTP(w, r.WithContext(middleware.WithEditor(r.Context(), editor)))
			})
		})
		r.Get("/pages/", e.Admin.PagesList)
		r.Put("/pages/{pageKey}", e.Admin.PageUpsert)
		r.Post("/cache/flush", e.Admin.CacheFlush)
		r.Get("/pages/{pageKey}/elements", e.Admin.ElementsList)
		r.Post("/pages/{pageKey}/elements/{elementKey}/transition", e.Admin.ElementTransition)
		r.Get("/pages/{pageKey}/export", e.Admin.PageExport)
		r.Post("/pages/{pageKey}/import", e.Admin.PageImport)

		r.Post("/sessions/", e.Sessions.Start)
		r.Get("/sessions/{id}", e.Sessions.Status)
		r.Post("/sessions/{id}/save", e.Sessions.Save)
		r.Delete("/sessions/{id}", e.Sessions.End)
		r.Put("/sessions/{id}/elements/{elementKey}/{lang}", e.Sessions.Edit)
		r.Get("/sessions/{id}/elements/{elementKey}/{lang}/fragment", e.Sessions.Fragment)
	})
	r.Get("/preview/{pageKey}", e.Public.Preview)
	r.Get("/{pageKey}", e.Public.Page)
	return r
}

// do sends a request through the test router.
func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// startSession opens a session on the services page as the test editor.
func (e *testEnv) startSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/admin/sessions/", `{"page":"services"}`)
	require.Equal(t, http.StatusCreated, rec.Code, "start session: %s", rec.Body.String())
	var st session.Status
	decodeBody(t, rec, &st)
	return st.ID
}

// decodeBody unmarshals a JSON response body.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "decode response: %s", rec.Body.String())
}

// element fetches a stored element or fails the test.
func (e *testEnv) element(t *testing.T, elementKey string) *models.ContentElement {
	t.Helper()
	el, err := e.Repo.FetchElement(context.Background(), "services", elementKey)
	require.NoError(t, err, "fetch %s", elementKey)
	require.NotNil(t, el, "element %s not stored", elementKey)
	return el
}
