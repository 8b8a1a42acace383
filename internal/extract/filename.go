package extract

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	bracketAuthorPattern = regexp.MustCompile(`^\[([^\]]+)\](.+)$`)
	yearAuthorPattern    = regexp.MustCompile(`^(\d{4})-([^-]+)-(.+)$`)
	yearKindPattern      = regexp.MustCompile(`^(\d{4})_(?:Book|Article)_(.+)$`)
	arxivPattern         = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v\d+)?\s*(.*)$`)
	looseYearPattern     = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
)

// FilenameHints recognizes common download naming schemes:
//
//	[Author]Title.pdf
//	YYYY-Author-Title.pdf
//	YYYY_Book_Title.pdf (publisher downloads)
//	2101.01234 Title.pdf (arXiv)
//
// Names matching none of them only contribute a year found anywhere in the
// name; the title is left for the caller's filename fallback.
type FilenameHints struct{}

// Extract parses the base name of path.
func (FilenameHints) Extract(path string) Metadata {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	if m := bracketAuthorPattern.FindStringSubmatch(name); m != nil {
		return Metadata{Author: m[1], Title: spaced(m[2])}
	}
	if m := yearAuthorPattern.FindStringSubmatch(name); m != nil {
		return Metadata{Year: m[1], Author: spaced(m[2]), Title: spaced(m[3])}
	}
	if m := yearKindPattern.FindStringSubmatch(name); m != nil {
		return Metadata{Year: m[1], Title: spaced(m[2])}
	}
	if m := arxivPattern.FindStringSubmatch(name); m != nil {
		return Metadata{Title: spaced(m[2])}
	}
	if m := looseYearPattern.FindStringSubmatch(name); m != nil {
		return Metadata{Year: m[1]}
	}
	return Metadata{}
}

func spaced(value string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(value, "_", " ")), " ")
}
