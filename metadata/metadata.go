// Package metadata decodes the "key~value#key~value" column assignments that
// accompany a queued document.
package metadata

import (
	"sort"
	"strings"
)

const (
	pairSeparator  = "#"
	valueSeparator = "~"
)

// Decode splits raw into pairs. A pair that does not split into exactly two
// parts is skipped; later duplicates win. Keys and values are not trimmed.
// The result is never nil.
func Decode(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, pairSeparator) {
		parts := strings.Split(pair, valueSeparator)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// Encode is the inverse of Decode for maps whose keys and values contain no
// separators. Pairs are sorted by key.
func Encode(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+valueSeparator+fields[k])
	}
	return strings.Join(pairs, pairSeparator)
}
