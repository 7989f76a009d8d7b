// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug normalizes page and element keys. Keys are stable logical
// names such as "services" or "hero_title" and may only contain lowercase
// ASCII letters, digits, underscores and hyphens.
package slug

import (
	"regexp"
	"strings"
)

// MaxKeyLen bounds page and element key length.
const MaxKeyLen = 100

var (
	// whitespace runs become a single underscore.
	whitespace = regexp.MustCompile(`\s+`)
	// disallowed matches anything outside the key alphabet.
	disallowed = regexp.MustCompile(`[^a-z0-9_-]`)
	// repeatedSeparators collapses runs like "__" or "--".
	repeatedSeparators = regexp.MustCompile(`([_-])[_-]+`)
)

// Key normalizes s into a key.
// Example: "  Hero Title! " → "hero_title"
func Key(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = whitespace.ReplaceAllString(result, "_")
	result = disallowed.ReplaceAllString(result, "")
	result = repeatedSeparators.ReplaceAllString(result, "$1")
	result = strings.Trim(result, "_-")
	if len(result) > MaxKeyLen {
		result = strings.Trim(result[:MaxKeyLen], "_-")
	}
	return result
}

// Valid reports whether s is already a normalized, non-empty key.
func Valid(s string) bool {
	return s != "" && Key(s) == s
}
