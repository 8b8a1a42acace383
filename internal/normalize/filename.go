package normalize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"bibkeep/internal/textutil"
)

const (
	// DefaultExtension is used when a source file has no extension.
	DefaultExtension = ".pdf"
	// DefaultMaxFilenameLength bounds generated names, extension included.
	DefaultMaxFilenameLength = 150
)

// GenerateFilename derives the canonical filename stem for a record:
//
//	1 author   Surname_Title
//	2 authors  Surname1_Surname2_Title
//	3+ authors Surname1_et_al_Title (also for an explicit et al)
//
// The stem is bounded so that the name fits DefaultMaxFilenameLength with
// DefaultExtension appended.
func GenerateFilename(authors []string, title string) string {
	return generateStem(authors, title, DefaultMaxFilenameLength-len(DefaultExtension))
}

// CanonicalFilename returns the full canonical filename including ext. A
// maxLength <= 0 uses DefaultMaxFilenameLength.
func CanonicalFilename(authors []string, title, ext string, maxLength int) string {
	ext = NormalizeExtension(ext)
	if maxLength <= 0 {
		maxLength = DefaultMaxFilenameLength
	}
	return generateStem(authors, title, maxLength-len(ext)) + ext
}

// NormalizeExtension lower-cases ext and defaults it to DefaultExtension.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// AuthorPart returns the author prefix of a canonical filename.
func AuthorPart(authors []string) string {
	names, etAl := RealAuthors(authors)
	surnames := make([]string, 0, len(names))
	for _, name := range names {
		if IsUnknownAuthor(name) {
			continue
		}
		if surname := filenameSurname(name); surname != "" {
			surnames = append(surnames, surname)
		}
	}
	switch {
	case len(surnames) == 0:
		return UnknownAuthor
	case etAl || len(surnames) >= 3:
		return surnames[0] + "_et_al"
	case len(surnames) == 2:
		return surnames[0] + "_" + surnames[1]
	default:
		return surnames[0]
	}
}

func generateStem(authors []string, title string, limit int) string {
	prefix := AuthorPart(authors) + "_"
	words := TitleWords(title)
	if len(words) == 0 {
		words = []string{UntitledTitle}
	}

	var b strings.Builder
	b.WriteString(prefix)
	for i, word := range words {
		if i == 0 {
			if b.Len()+len(word) > limit {
				// A single word longer than the whole budget is the only case
				// where a token is cut.
				word = truncateBytes(word, max(limit-b.Len(), 1))
			}
			b.WriteString(word)
			continue
		}
		if b.Len()+1+len(word) > limit {
			break
		}
		b.WriteByte('_')
		b.WriteString(word)
	}
	return b.String()
}

func filenameSurname(name string) string {
	surname := textutil.StripDiacritics(Surname(name))
	var b strings.Builder
	for _, r := range surname {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "'-")
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

var (
	leadingNumbers = regexp.MustCompile(`^\d+[_\-\s]`)
	numericSuffix  = regexp.MustCompile(`_(\d+)$`)
)

// IsSuspectFilename flags names that look machine-generated rather than
// derived from metadata: leading numeric runs, "untitled", very short stems
// without structure, or stems that are mostly digits.
func IsSuspectFilename(filename string) bool {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if stem == "" {
		return true
	}
	if leadingNumbers.MatchString(stem) {
		return true
	}
	if strings.Contains(strings.ToLower(stem), "untitled") {
		return true
	}
	if len(stem) < 6 && !strings.Contains(stem, "_") {
		return true
	}
	digits := 0
	for _, r := range stem {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits*2 > utf8.RuneCountInString(stem)
}

// HasNumericSuffix reports whether a filename ends in _2, _3, ... before its
// extension, the mark of an earlier collision workaround.
func HasNumericSuffix(filename string) bool {
	return numericSuffix.MatchString(strings.TrimSuffix(filename, filepath.Ext(filename)))
}
