// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package preview

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// channelPrefix namespaces override channels in shared stores.
const channelPrefix = "preview:"

// NormalizePath reduces a page path to the form used for channel keys:
// lowercase, no query or fragment, no leading, trailing or repeated
// slashes.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.ToLower(strings.TrimSpace(path)), "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// ChannelKey derives the override channel key for a page path. Equivalent
// paths share a key; distinct pages never collide in practice.
func ChannelKey(pagePath string) string {
	sum := blake2b.Sum256([]byte(NormalizePath(pagePath)))
	return channelPrefix + hex.EncodeToString(sum[:])[:32]
}
