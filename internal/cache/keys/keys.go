// Package keys builds the Redis keys used by the geohash cell index.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	prefix = "gh"
	// LocationShards is the number of hashes the id->cell map is spread over.
	LocationShards = 64
)

// CellKey names the set of point ids currently inside cell.
func CellKey(layer, cell string) string {
	return fmt.Sprintf("%s:%s:cell:%s", prefix, sanitizeLayer(strings.TrimSpace(layer)), strings.ToLower(cell))
}

// LocationKey names the hash holding the current cell for id.
func LocationKey(layer, id string) string {
	return fmt.Sprintf("%s:%s:loc:%02d", prefix, sanitizeLayer(strings.TrimSpace(layer)), Shard(id))
}

func Shard(id string) int {
	return int(xxhash.Sum64String(id) % LocationShards)
}

func sanitizeLayer(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
