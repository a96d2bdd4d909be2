// Package textnorm normalizes French text for lookups and URL slugs.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining diacritics after canonical decomposition.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key returns an accent- and case-insensitive form of s with surrounding
// whitespace trimmed and inner whitespace collapsed to single spaces.
func Key(s string) string {
	s = stripMarks(s)
	s = cases.Fold().String(s) // Casers are stateful, one per call
	return strings.Join(strings.Fields(s), " ")
}

// Slug builds a URL slug from the non-empty parts: accents are stripped,
// letters lowercased and every run of other characters becomes one dash.
func Slug(parts ...string) string {
	var b strings.Builder
	dash := false
	for _, part := range parts {
		for _, r := range Key(part) {
			switch {
			case r == 'œ':
				if dash && b.Len() > 0 {
					b.WriteByte('-')
				}
				b.WriteString("oe")
				dash = false
			case r == 'æ':
				if dash && b.Len() > 0 {
					b.WriteByte('-')
				}
				b.WriteString("ae")
				dash = false
			case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
				if dash && b.Len() > 0 {
					b.WriteByte('-')
				}
				b.WriteRune(r)
				dash = false
			default:
				dash = true
			}
		}
		dash = true
	}
	return b.String()
}
