package normalize

import (
	"regexp"
	"strings"
)

const (
	// UnknownAuthor is the single-entry author list for unparsable input.
	UnknownAuthor = "Unknown"
	// EtAl is the trailing sentinel entry recording an explicit "et al.".
	EtAl = "et al."
)

var (
	etAlPattern      = regexp.MustCompile(`(?i)[,;]?\s*\bet\.?\s*al\b\.?`)
	editorPattern    = regexp.MustCompile(`(?i)\(\s*(?:eds?|editors?)\.?\s*\)|,?\s*\beds?\.(?:\s|$)`)
	authorSeparators = regexp.MustCompile(`(?i)\s*[,;]\s*(?:and\s+|&\s*)?|\s+and\s+|\s*&\s*`)
)

var honorifics = map[string]struct{}{
	"dr": {}, "prof": {}, "professor": {}, "mr": {}, "mrs": {}, "ms": {}, "sir": {}, "dame": {},
}

var nameSuffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "phd": {}, "md": {},
}

var unknownMarkers = map[string]struct{}{
	"": {}, "unknown": {}, "---": {}, "null": {}, "none": {}, "n/a": {}, "anonymous": {},
}

// IsUnknownAuthor reports whether raw carries no usable author.
func IsUnknownAuthor(raw string) bool {
	_, ok := unknownMarkers[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// IsUnknownAuthors reports whether an author list has no real author.
func IsUnknownAuthors(authors []string) bool {
	names, _ := RealAuthors(authors)
	for _, name := range names {
		if !IsUnknownAuthor(name) {
			return false
		}
	}
	return true
}

// SplitAuthors parses a raw author string into cleaned display names in
// citation order. An explicit "et al" is kept as a trailing EtAl entry.
// Unusable input yields []string{"Unknown"}.
func SplitAuthors(raw string) []string {
	raw = strings.Join(strings.Fields(raw), " ")
	if IsUnknownAuthor(raw) {
		return []string{UnknownAuthor}
	}

	etAl := etAlPattern.MatchString(raw)
	raw = etAlPattern.ReplaceAllString(raw, " ")
	raw = editorPattern.ReplaceAllString(raw, " ")

	var names []string
	seen := make(map[string]struct{})
	for _, part := range authorSeparators.Split(raw, -1) {
		name := cleanName(part)
		if name == "" || IsUnknownAuthor(name) {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return []string{UnknownAuthor}
	}
	if etAl {
		names = append(names, EtAl)
	}
	return names
}

// ParseAuthor parses a raw author string into surnames in citation order.
// The EtAl sentinel is preserved. Unusable input yields []string{"Unknown"}.
func ParseAuthor(raw string) []string {
	names := SplitAuthors(raw)
	surnames := make([]string, 0, len(names))
	for _, name := range names {
		if name == EtAl || name == UnknownAuthor {
			surnames = append(surnames, name)
			continue
		}
		surnames = append(surnames, Surname(name))
	}
	return surnames
}

// RealAuthors strips the EtAl sentinel and reports whether it was present.
func RealAuthors(authors []string) ([]string, bool) {
	out := make([]string, 0, len(authors))
	etAl := false
	for _, author := range authors {
		if strings.EqualFold(strings.TrimSpace(author), EtAl) {
			etAl = true
			continue
		}
		if strings.TrimSpace(author) == "" {
			continue
		}
		out = append(out, author)
	}
	return out, etAl
}

// Surname returns the family name of a display name: the last token, skipping
// generational suffixes. Apostrophes and hyphens are kept.
func Surname(name string) string {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

// Initials returns the given-name initials of a display name, e.g.
// "Richard A. Berk" -> "R. A.". Single-token names have no initials.
func Initials(name string) string {
	tokens := nameTokens(name)
	if len(tokens) < 2 {
		return ""
	}
	initials := make([]string, 0, len(tokens)-1)
	for _, token := range tokens[:len(tokens)-1] {
		for _, r := range token {
			initials = append(initials, strings.ToUpper(string(r))+".")
			break
		}
	}
	return strings.Join(initials, " ")
}

// nameTokens splits a cleaned name, dropping trailing generational suffixes.
func nameTokens(name string) []string {
	tokens := strings.Fields(name)
	for len(tokens) > 1 {
		last := strings.ToLower(strings.Trim(tokens[len(tokens)-1], ".,"))
		if _, ok := nameSuffixes[last]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	for i, token := range tokens {
		tokens[i] = strings.Trim(token, ",;:")
	}
	return tokens
}

func cleanName(part string) string {
	tokens := strings.Fields(part)
	kept := tokens[:0]
	for _, token := range tokens {
		bare := strings.ToLower(strings.Trim(token, ".,;:"))
		if _, ok := honorifics[bare]; ok || bare == "and" || bare == "&" {
			continue
		}
		if strings.Trim(token, ".,;:()[]\"") == "" {
			continue
		}
		kept = append(kept, strings.Trim(token, "()[]\""))
	}
	return strings.TrimRight(strings.Join(kept, " "), ",;:")
}
