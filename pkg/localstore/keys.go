package localstore

import (
	"net/url"
	"regexp"
	"strings"
)

// Collection names one of the persisted collections.
type Collection string

const (
	Tasks     Collection = "tasks"
	Dashboard Collection = "dashboard"
	Links     Collection = "links"

	// sheetHandle is not a collection but shares the key scheme.
	sheetHandle Collection = "sheet"
)

var collections = []Collection{Tasks, Dashboard, Links, sheetHandle}

const (
	keyPrefix       = "kotonote/v2"
	anonymousSuffix = "anonymous"
	legacyPrefix    = "hachiware"
)

// identityKey maps an identity to a key segment. Emails compare case-insensitively;
// escaping keeps distinct identities distinct. The "user:" tag keeps any identity
// from landing on the reserved anonymous segment.
func identityKey(identity string) string {
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		return anonymousSuffix
	}
	return "user:" + url.PathEscape(id)
}

// Key returns the current-version storage key for c and identity.
func Key(c Collection, identity string) string {
	return keyPrefix + "/" + string(c) + "/" + identityKey(identity)
}

var legacyUnsafe = regexp.MustCompile(`[^A-Za-z0-9]`)

// legacyKey is the key layout used before v2. Its sanitizer folded every
// non-alphanumeric rune to "_", so "a.b@x" and "a_b@x" shared storage.
func legacyKey(c Collection, identity string) string {
	base := legacyPrefix + "-" + string(c) + "-v1"
	id := strings.TrimSpace(identity)
	if id == "" {
		return base
	}
	return base + "-" + legacyUnsafe.ReplaceAllString(id, "_")
}
