// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inlinecms/internal/autosave"
	"inlinecms/internal/editor"
	"inlinecms/internal/middleware"
	"inlinecms/internal/models"
	"inlinecms/internal/session"
)

// Sessions groups the editing session API. Every session belongs to the
// editor who started it; other editors see it as not found.
type Sessions struct {
	manager *session.Manager
	langs   Languages
}

// NewSessions creates a new Sessions handler group.
func NewSessions(manager *session.Manager, langs Languages) *Sessions {
	return &Sessions{manager: manager, langs: langs}
}

// Start opens an editing session for a page.
func (h *Sessions) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeValid(w, r, "start session", &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.manager.Start(r.Context(), req.Page, middleware.EditorFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/sessions/"+s.ID)
	writeJSON(w, http.StatusCreated, s.Status())
}

// Status reports unsaved changes, save failures and preview freshness.
func (h *Sessions) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// editResponse reports the outcome of a local edit. Status is the
// persisted status of the element; saving an edit to a published element
// changes the public site.
type editResponse struct {
	Changed           bool                 `json:"changed"`
	Seq               uint64               `json:"seq,omitempty"`
	Status            models.ContentStatus `json:"status"`
	HasUnsavedChanges bool                 `json:"has_unsaved_changes"`
}

// Edit records a local edit. Autosave and the preview bridge pick it up.
func (h *Sessions) Edit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	lang := chi.URLParam(r, "lang")
	if !h.langs.Supports(lang) {
		writeError(w, r, badRequest("unsupported language %q", lang))
		return
	}
	var req editRequest
	if err := decodeValid(w, r, "edit", &req); err != nil {
		writeError(w, r, err)
		return
	}

	elementKey := chi.URLParam(r, "elementKey")
	ch, changed, err := s.Edit(elementKey, lang, req.Type, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{
		Changed:           changed,
		Seq:               ch.Seq,
		Status:            s.Store().Status(s.Page, elementKey),
		HasUnsavedChanges: s.Store().HasUnsavedChanges(),
	})
}

// Fragment renders the current value of one element alone, for surfaces
// that patch content in place. The element type comes from the session;
// ?type= names it for elements that have never been stored.
func (h *Sessions) Fragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	elementKey := chi.URLParam(r, "elementKey")
	lang := chi.URLParam(r, "lang")
	if !h.langs.Supports(lang) {
		writeError(w, r, badRequest("unsupported language %q", lang))
		return
	}

	typ, known := s.Store().TypeOf(s.Page, elementKey)
	if !known {
		typ = models.ElementType(r.URL.Query().Get("type"))
		if typ == "" {
			writeError(w, r, badRequest("element %q has no value yet; pass ?type=", elementKey))
			return
		}
		if !typ.Valid() {
			writeError(w, r, fmt.Errorf("%w: %q", editor.ErrInvalidType, typ))
			return
		}
	}

	key := editor.Key{Page: s.Page, Element: elementKey, Lang: lang}
	if err := key.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	frag, err := s.Bridge().Fragment(key, typ, models.Payload{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeHTML(w, http.StatusOK, []byte(frag))
}

// Save persists every dirty element now.
func (h *Sessions) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	saved, err := s.Scheduler().SaveNow(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": saved, "session": s.Status()})
}

// End tears the session down. ?policy=flush|drop overrides the configured
// teardown policy.
func (h *Sessions) End(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var policy autosave.Policy
	if raw := r.URL.Query().Get("policy"); raw != "" {
		p, err := autosave.ParsePolicy(raw)
		if err != nil {
			writeError(w, r, badRequest("%v", err))
			return
		}
		policy = p
	}
	if err := h.manager.End(r.Context(), s.ID, policy); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Sessions) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.manager.Get(id)
	if err == nil && s.EditorID != middleware.EditorFromCtx(r.Context()) {
		err = fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}
