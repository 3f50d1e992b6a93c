package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reJunk    = regexp.MustCompile(`[^\p{L}\p{N}\s€.,;:()\-/'%°]`)
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// CleanText collapses whitespace and drops symbols, keeping letters of any
// script (accented Italian included), digits and basic punctuation.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = reJunk.ReplaceAllString(s, " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// FoldKey is the comparison form of s: lower-cased, diacritics removed,
// punctuation turned into spaces, whitespace collapsed.
func FoldKey(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(removeAccents(s))
	s = reNonWord.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
