// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// EditorKey is the context key for the authenticated editor identity.
	EditorKey contextKey = "editor"
)

// Authenticator resolves bearer tokens to editor identities.
type Authenticator struct {
	tokens map[string]string
}

// NewAuthenticator creates an Authenticator from a token to editor map.
func NewAuthenticator(tokens map[string]string) *Authenticator {
	copied := make(map[string]string, len(tokens))
	for token, editor := range tokens {
		copied[token] = editor
	}
	return &Authenticator{tokens: copied}
}

// Identify returns the editor for token, comparing in constant time.
func (a *Authenticator) Identify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	var found string
	for candidate, editor := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			found = editor
		}
	}
	return found, found != ""
}

// RequireEditor rejects requests without a known "Authorization: Bearer"
// token with 401.
func (a *Authenticator) RequireEditor(next http.Handler) http.Handler {
	return a.require(next, false)
}

// RequireEditorQuery also accepts the token from the access_token query
// parameter. Preview iframes and websocket upgrades cannot carry headers
// from a browser.
func (a *Authenticator) RequireEditorQuery(next http.Handler) http.Handler {
	return a.require(next, true)
}

func (a *Authenticator) require(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		editor, ok := a.Identify(bearerToken(r, allowQuery))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="editor"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "editor authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEditor(r.Context(), editor)))
	})
}

func bearerToken(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// WithEditor stores the editor identity in ctx.
func WithEditor(ctx context.Context, editor string) context.Context {
	return context.WithValue(ctx, EditorKey, editor)
}

// EditorFromCtx extracts the editor identity from the request context.
// Returns "" if the request is not authenticated.
func EditorFromCtx(ctx context.Context) string {
	editor, _ := ctx.Value(EditorKey).(string)
	return editor
}
