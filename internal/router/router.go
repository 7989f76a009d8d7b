// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// editing server. It organizes routes into the editor API, the preview
// surface and the public site.
package router

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inlinecms/internal/handlers"
	"inlinecms/internal/middleware"
)

// Deps are the handler groups and middleware the router mounts.
type Deps struct {
	Auth     *middleware.Authenticator
	Limiter  *middleware.RateLimiter // may be nil
	Admin    *handlers.Admin
	Sessions *handlers.Sessions
	Public   *handlers.Public
	Hub      http.Handler
	Static   fs.FS
	// FrameOrigins may embed preview pages in an iframe.
	FrameOrigins []string
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders(d.FrameOrigins))

	r.Get("/health", healthHandler)

	// Preview websocket: browsers cannot set headers on the upgrade.
	r.With(d.Auth.RequireEditorQuery).Get("/admin/preview/ws", d.Hub.ServeHTTP)

	// Editor API.
	r.Route("/admin", func(r chi.Router) {
		r.Use(d.Auth.RequireEditor)
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", d.Admin.PagesList)
			r.Put("/{pageKey}", d.Admin.PageUpsert)
			r.Get("/{pageKey}/elements", d.Admin.ElementsList)
			r.Post("/{pageKey}/elements/{elementKey}/transition", d.Admin.ElementTransition)
			r.Get("/{pageKey}/export", d.Admin.PageExport)
			r.Post("/{pageKey}/import", d.Admin.PageImport)
		})

		r.Post("/cache/flush", d.Admin.CacheFlush)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", d.Sessions.Start)
			r.Get("/{id}", d.Sessions.Status)
			r.Post("/{id}/save", d.Sessions.Save)
			r.Delete("/{id}", d.Sessions.End)
			r.Put("/{id}/elements/{elementKey}/{lang}", d.Sessions.Edit)
			r.Get("/{id}/elements/{elementKey}/{lang}/fragment", d.Sessions.Fragment)
		})
	})

	// Preview surface: shows unpublished content, so editors only.
	r.With(d.Auth.RequireEditorQuery).Get("/preview/{pageKey}", d.Public.Preview)

	if d.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(d.Static))))
	}

	// Public site.
	r.Get("/{pageKey}", d.Public.Page)

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
