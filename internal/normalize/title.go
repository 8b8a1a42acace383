package normalize

import (
	"strings"
	"unicode"

	"bibkeep/internal/textutil"
)

// UntitledTitle is the fallback for titles with no usable words.
const UntitledTitle = "Untitled"

// stopWords are dropped from filenames and comparison keys wherever they
// appear, including the first position.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"of": {}, "in": {}, "to": {}, "for": {}, "on": {}, "at": {}, "by": {},
	"with": {}, "from": {}, "into": {}, "onto": {}, "over": {}, "under": {},
	"about": {}, "via": {}, "as": {}, "per": {},
	"and": {}, "or": {}, "nor": {},
}

// protectedTerms are domain words that survive the stop-word pass.
var protectedTerms = map[string]struct{}{
	"deep": {}, "machine": {}, "neural": {}, "statistical": {}, "bayesian": {},
	"quantum": {}, "probabilistic": {}, "reinforcement": {}, "computational": {},
	"r": {}, "c": {}, "go": {},
}

// IsStopWord reports whether word is removed by the title sanitizer.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// IsProtectedTerm reports whether word is exempt from stop-word removal.
func IsProtectedTerm(word string) bool {
	_, ok := protectedTerms[strings.ToLower(word)]
	return ok
}

// NormalizeTitle returns the display title stored on a record: whitespace
// collapsed, original casing kept. Empty input falls back to the filename
// stem and then to "Untitled"; degraded reports whether a fallback was used.
func NormalizeTitle(raw, fallbackStem string) (title string, degraded bool) {
	if title = strings.Join(strings.Fields(raw), " "); title != "" {
		return title, false
	}
	stem := strings.NewReplacer("_", " ", "-", " ").Replace(fallbackStem)
	if title = strings.Join(strings.Fields(stem), " "); title != "" {
		return title, true
	}
	return UntitledTitle, true
}

// SanitizeTitle returns the filename form of a title: diacritics folded,
// punctuation and stop words removed, original casing preserved, words
// joined with underscores. Empty results become "Untitled".
func SanitizeTitle(raw string) string {
	words := TitleWords(raw)
	if len(words) == 0 {
		return UntitledTitle
	}
	return strings.Join(words, "_")
}

// ComparableTitle returns the lower-cased, space-joined significant words of
// a title. Two titles that differ only in stop words, case, accents or
// punctuation share the same comparable form.
func ComparableTitle(raw string) string {
	words := TitleWords(raw)
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, " ")
}

// TitleWords returns the significant words of a title in order.
func TitleWords(raw string) []string {
	cleaned := textutil.StripDiacritics(raw)
	cleaned = strings.NewReplacer("'", "", "’", "", "ʼ", "", "`", "").Replace(cleaned)
	tokens := strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	mixedCase := hasLower(cleaned)

	words := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if keepWord(token, mixedCase) {
			words = append(words, token)
		}
	}
	return words
}

func keepWord(token string, mixedCase bool) bool {
	if IsProtectedTerm(token) {
		return true
	}
	// Upper-case acronyms such as IT or OR in an otherwise mixed-case title
	// are not the stop words they spell.
	if mixedCase && len(token) > 1 && isUpper(token) {
		return true
	}
	return !IsStopWord(token)
}

func hasLower(value string) bool {
	for _, r := range value {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func isUpper(value string) bool {
	letters := 0
	for _, r := range value {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}
