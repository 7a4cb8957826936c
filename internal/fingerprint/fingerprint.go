// Package fingerprint derives stable cache/dedup keys from request
// parameters.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// Compute produces a fixed-length digest for an unordered parameter mapping.
// Parameter names are sorted lexicographically and each value is rendered as
// JSON, so two mappings with the same pairs hash identically regardless of
// key order, and any value difference changes the digest.
func Compute(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		encoded, err := json.Marshal(params[k])
		if err != nil {
			return "", fmt.Errorf("encode param %q: %w", k, err)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.Write(encoded)
	}

	h := fnv.New128a()
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil)), nil
}
