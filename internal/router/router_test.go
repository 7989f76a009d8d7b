// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the HTTP routing configuration, middleware
// chains, and the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/clock"
	"inlinecms/internal/engine"
	"inlinecms/internal/handlers"
	"inlinecms/internal/middleware"
	"inlinecms/internal/models"
	"inlinecms/internal/preview"
	"inlinecms/internal/publish"
	"inlinecms/internal/session"
	"inlinecms/internal/store"
	"inlinecms/internal/transfer"
)

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	healthHandler(w, r)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthHandlerMethods(t *testing.T) {
	// Health endpoint only accepts GET.
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	healthHandler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ---------------------------------------------------------------------------
// Route table
// ---------------------------------------------------------------------------

const editorToken = "s3cret-token"

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := store.NewMemory(store.WithClock(clk), store.WithPages(&models.ContentPage{
		PageKey:     "services",
		DisplayName: map[string]string{"ar": "خدماتنا"},
		IsActive:    true,
		Layout:      `<h1>{{text "hero_title" "Our Services"}}</h1>`,
	}))
	overrides := preview.NewMemoryOverrides()
	langs := handlers.Languages{Supported: []string{"ar", "en"}, Default: "ar"}
	hub := preview.NewHub(preview.HubConfig{})

	manager := session.NewManager(session.Deps{
		Repo: repo, Pages: repo, Overrides: overrides, Transport: hub, Clock: clk,
	}, session.Config{})
	t.Cleanup(func() { manager.Close(context.Background()) })

	machine := publish.NewMachine(repo, publish.Config{DefaultLang: "ar", Log: repo, Clock: clk})
	svc := transfer.NewService(repo, repo, transfer.Config{Languages: langs.Supported, Clock: clk})

	eng := engine.New()
	return New(Deps{
		Auth:         middleware.NewAuthenticator(map[string]string{editorToken: "alice"}),
		Limiter:      limiter,
		Admin:        handlers.NewAdmin(repo, repo, machine, svc, eng, nil),
		Sessions:     handlers.NewSessions(manager, langs),
		Public:       handlers.NewPublic(eng, repo, repo, overrides, nil, langs),
		Hub:          hub,
		Static:       fstest.MapFS{"preview.js": {Data: []byte("// preview client")}},
		FrameOrigins: []string{"https://editor.example.com"},
	})
}

func serve(h http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t, nil)
	bearer := []string{"Authorization", "Bearer " + editorToken}

	tests := []struct {
		name   string
		method string
		target string
		header []string
		want   int
	}{
		{"health", "GET", "/health", nil, http.StatusOK},
		{"public page", "GET", "/services", nil, http.StatusOK},
		{"public unknown page", "GET", "/nowhere", nil, http.StatusNotFound},
		{"static asset", "GET", "/static/preview.js", nil, http.StatusOK},
		{"admin without token", "GET", "/admin/pages/", nil, http.StatusUnauthorized},
		{"admin wrong token", "GET", "/admin/pages/", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"admin with token", "GET", "/admin/pages/", bearer, http.StatusOK},
		{"admin rejects query token", "GET", "/admin/pages/?access_token=" + editorToken, nil, http.StatusUnauthorized},
		{"elements", "GET", "/admin/pages/services/elements", bearer, http.StatusOK},
		{"export", "GET", "/admin/pages/services/export", bearer, http.StatusOK},
		{"page upsert without token", "PUT", "/admin/pages/services", nil, http.StatusUnauthorized},
		{"page upsert without body", "PUT", "/admin/pages/services", bearer, http.StatusBadRequest},
		{"cache flush", "POST", "/admin/cache/flush", bearer, http.StatusNoContent},
		{"cache flush without token", "POST", "/admin/cache/flush", nil, http.StatusUnauthorized},
		{"unknown session", "GET", "/admin/sessions/abc", bearer, http.StatusNotFound},
		{"preview without token", "GET", "/preview/services", nil, http.StatusUnauthorized},
		{"preview with query token", "GET", "/preview/services?access_token=" + editorToken, nil, http.StatusOK},
		{"websocket without token", "GET", "/admin/preview/ws?page=services", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, tt.method, tt.target, tt.header...)
			assert.Equal(t, tt.want, w.Code, "%s %s: body = %s", tt.method, tt.target, w.Body.String())
		})
	}
}

func TestRoutesSecureHeaders(t *testing.T) {
	h := newTestRouter(t, nil)
	w := serve(h, "GET", "/services")

	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "https://editor.example.com",
		"CSP allows the editor origin to frame pages")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRoutesRateLimit(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	limiter := middleware.NewRateLimiter(1, time.Minute, clk)
	t.Cleanup(limiter.Stop)
	h := newTestRouter(t, limiter)
	bearer := []string{"Authorization", "Bearer " + editorToken}

	require.Equal(t, http.StatusOK, serve(h, "GET", "/admin/pages/", bearer...).Code, "first request")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "GET", "/admin/pages/", bearer...).Code, "second request")
	assert.Equal(t, http.StatusOK, serve(h, "GET", "/services").Code, "public site must not be rate limited")
}
