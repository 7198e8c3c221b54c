package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyFor builds a stable cache key from a prefix and request parameters.
// Parameters are sorted so map order never changes the key, and empty
// values are dropped the same way the query string builder drops them.
func KeyFor(prefix string, params map[string]string) string {
	var parts []string
	for k, v := range params {
		if v == "" {
			continue
		}
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	if len(parts) == 0 {
		return prefix
	}
	sort.Strings(parts)
	return prefix + "?" + strings.Join(parts, "&")
}

// Namespace returns the leading segment of a key, up to the first ':' or '?'.
// It is used to label metrics without exploding cardinality.
func Namespace(key string) string {
	if i := strings.IndexAny(key, ":?"); i > 0 {
		return key[:i]
	}
	return key
}
