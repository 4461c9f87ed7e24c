package model

import "strings"

// NormalizeID reduces a variant identifier to its canonical comparison key.
// Backends report the same variant as "gid://shopify/ProductVariant/123",
// "ProductVariant/123" or "123"; all normalize to "123". A query string or
// fragment is dropped. Input that does not look like a path normalizes to
// itself (trimmed), so normalization never fails.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return id
}

// SameID reports whether two identifiers refer to the same variant.
func SameID(a, b string) bool {
	return NormalizeID(a) == NormalizeID(b)
}
