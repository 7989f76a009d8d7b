// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers of the editing server.
// Handlers are grouped by concern (public pages, editor API, editing
// sessions) and receive their dependencies through the handler struct.
package handlers

import (
	"net/http"
	"strings"
)

// Languages is the set of content languages and the default one.
type Languages struct {
	Supported []string
	Default   string
}

// Supports reports whether lang is enabled.
func (l Languages) Supports(lang string) bool {
	for _, s := range l.Supported {
		if s == lang {
			return true
		}
	}
	return false
}

// FromRequest returns the ?lang= query parameter, or the default language
// when it is absent.
func (l Languages) FromRequest(r *http.Request) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("lang")))
	if lang == "" {
		return l.Default, nil
	}
	if !l.Supports(lang) {
		return "", badRequest("unsupported language %q", lang)
	}
	return lang, nil
}
