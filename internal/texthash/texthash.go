// Package texthash provides deterministic text normalization and a stable
// 64-bit content hash used for sample identity and deduplication.
package texthash

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// #region normalize

// Normalize collapses whitespace runs to a single space, trims the ends, and
// canonicalizes curly apostrophes to a plain apostrophe. Cosmetically different
// but semantically identical text normalizes to the same string.
func Normalize(text string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '‘', '’':
			return '\''
		}
		return r
	}, text)
	return strings.Join(strings.Fields(replaced), " ")
}

// #endregion normalize

// #region hash

// Hash returns the FNV-1a 64-bit hash of the normalized text. Stable across
// processes and platforms.
func Hash(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(Normalize(text)))
	return h.Sum64()
}

// HashHex returns Hash formatted as a fixed-width hex string.
func HashHex(text string) string {
	return fmt.Sprintf("%016x", Hash(text))
}

// #endregion hash

// #region sample-id

// SampleID derives a stable identity for a (source, prompt, output) triple.
// The source label is canonicalized to lowercase with surrounding whitespace
// stripped so that "Teacher" and "teacher " produce the same id.
func SampleID(source, prompt, output string) string {
	src := strings.ToLower(strings.TrimSpace(source))
	if src == "" {
		src = "unknown"
	}
	return fmt.Sprintf("%s:%016x:%016x", src, Hash(prompt), Hash(output))
}

// #endregion sample-id
