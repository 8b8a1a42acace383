package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks ("Müller" -> "Muller") while
// preserving case.
func StripDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// Fold returns value with diacritics removed, case folded and whitespace
// collapsed. Two strings that differ only in accents, case or spacing fold to
// the same value.
func Fold(value string) string {
	folded := cases.Fold().String(StripDiacritics(value))
	return strings.Join(strings.Fields(folded), " ")
}
