// Package keyword provides text tokenization helpers for the deterministic
// keyword analyzer.
package keyword

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	nonSlugChars  = regexp.MustCompile(`[^\pL\pN]+`)
)

// TokenizeText splits free-form text into lower-cased, unicode-normalized
// tokens, suitable for fast matching against known term lists.
func TokenizeText(text string) []string {
	// the transform chain is stateful, so build it per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}

// Slugify removes all non-letter, non-digit characters and lower-cases the
// rest.
func Slugify(orig string) string {
	return strings.ToLower(nonSlugChars.ReplaceAllString(orig, ""))
}

func TokenInSet(tok string, set []string) bool {
	return slices.Contains(set, tok)
}
