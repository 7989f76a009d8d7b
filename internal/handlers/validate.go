// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"

	"inlinecms/internal/autosave"
	"inlinecms/internal/editor"
	"inlinecms/internal/models"
	"inlinecms/internal/publish"
	"inlinecms/internal/session"
	"inlinecms/internal/slug"
	"inlinecms/internal/store"
	"inlinecms/internal/validation"
)

// Request size limits.
const (
	maxEditBody   = 256 << 10
	maxImportBody = 4 << 20
	maxSmallBody  = 4 << 10
)

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// errorResponse is the JSON body of every API error.
type errorResponse struct {
	Error  string             `json:"error"`
	Issues []validation.Issue `json:"issues,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, editor.ErrInvalidKey),
		errors.Is(err, editor.ErrInvalidType):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnknownPage),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, publish.ErrInvalidTransition),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, store.ErrTypeMismatch),
		errors.Is(err, editor.ErrTypeMismatch),
		errors.Is(err, autosave.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, validation.ErrValidation):
		return http.StatusUnprocessableEntity
	case store.IsTransient(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes err as JSON. Server errors are logged and their detail
// is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Issues: validation.Issues(err)}
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp = errorResponse{Error: "Internal Server Error"}
	case http.StatusServiceUnavailable:
		slog.Warn("repository unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "5")
		resp = errorResponse{Error: "content repository temporarily unavailable"}
	}
	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("body exceeds %d bytes", limit)
		}
		return badRequest("decode body: %v", err)
	}
	if dec.More() {
		return badRequest("body must contain a single JSON value")
	}
	return nil
}

// readBody reads a raw body of at most limit bytes.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("body exceeds %d bytes", limit)
		}
		return nil, badRequest("read body: %v", err)
	}
	return raw, nil
}

// keyRule checks page and element keys.
var keyRule = ozzo.By(func(v any) error {
	s, _ := v.(string)
	if !slug.Valid(s) {
		return errors.New("must be lowercase letters, digits, '_' or '-'")
	}
	return nil
})

// startSessionRequest is the body of POST /admin/sessions.
type startSessionRequest struct {
	Page string `json:"page"`
}

func (s startSessionRequest) Validate() error {
	return ozzo.ValidateStruct(&s,
		ozzo.Field(&s.Page, ozzo.Required, keyRule),
	)
}

// transitionRequest is the body of a publication transition.
type transitionRequest struct {
	Status models.ContentStatus `json:"status"`
}

func (t transitionRequest) Validate() error {
	return ozzo.ValidateStruct(&t,
		ozzo.Field(&t.Status, ozzo.Required, ozzo.In(
			models.ContentStatusDraft, models.ContentStatusPublished, models.ContentStatusArchived)),
	)
}

// pageRequest is the body of PUT /admin/pages/{pageKey}.
type pageRequest struct {
	DisplayName  map[string]string `json:"display_name"`
	Description  string            `json:"description"`
	IsActive     bool              `json:"is_active"`
	DisplayOrder int               `json:"display_order"`
	Layout       string            `json:"layout"`
}

func (p pageRequest) Validate() error {
	return ozzo.ValidateStruct(&p,
		ozzo.Field(&p.DisplayName, ozzo.Required),
		ozzo.Field(&p.Layout, ozzo.Required),
	)
}

// editRequest is the body of a local edit.
type editRequest struct {
	Type    models.ElementType `json:"element_type"`
	Content models.Payload     `json:"content"`
}

func (e editRequest) Validate() error {
	return ozzo.ValidateStruct(&e,
		ozzo.Field(&e.Type, ozzo.Required, ozzo.By(func(any) error {
			if !e.Type.Valid() {
				return fmt.Errorf("must be one of %v", models.ElementTypes)
			}
			return nil
		})),
		ozzo.Field(&e.Content, ozzo.By(func(any) error {
			switch e.Content.Format {
			case "", models.BodyFormatHTML, models.BodyFormatMarkdown:
				return nil
			}
			return fmt.Errorf("format must be %q or %q", models.BodyFormatHTML, models.BodyFormatMarkdown)
		})),
	)
}

// decodeValid decodes a body and applies its rules.
func decodeValid(w http.ResponseWriter, r *http.Request, op string, dst ozzo.Validatable) error {
	if err := decodeJSON(w, r, maxSmallBody+maxEditBody, dst); err != nil {
		return err
	}
	return validation.FromRules(op, dst.Validate())
}
