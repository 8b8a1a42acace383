// Package extract supplies best-effort bibliographic metadata for incoming
// files. Extractors never fail: a field they cannot determine is left empty
// and the ingestion pipeline falls back to its own defaults.
package extract

import "strings"

// Metadata holds raw, unnormalized field values.
type Metadata struct {
	Author    string `json:"author,omitempty"`
	Title     string `json:"title,omitempty"`
	Year      string `json:"year,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// Empty reports whether no field is set.
func (m Metadata) Empty() bool {
	return m.Author == "" && m.Title == "" && m.Year == "" && m.Publisher == ""
}

// Merge fills the empty fields of m from fallback.
func (m Metadata) Merge(fallback Metadata) Metadata {
	if m.Author == "" {
		m.Author = fallback.Author
	}
	if m.Title == "" {
		m.Title = fallback.Title
	}
	if m.Year == "" {
		m.Year = fallback.Year
	}
	if m.Publisher == "" {
		m.Publisher = fallback.Publisher
	}
	return m
}

func (m Metadata) trimmed() Metadata {
	return Metadata{
		Author:    strings.Join(strings.Fields(m.Author), " "),
		Title:     strings.Join(strings.Fields(m.Title), " "),
		Year:      strings.TrimSpace(m.Year),
		Publisher: strings.Join(strings.Fields(m.Publisher), " "),
	}
}

// Extractor derives metadata for the file at path.
type Extractor interface {
	Extract(path string) Metadata
}

// Func adapts a function to Extractor.
type Func func(path string) Metadata

// Extract calls f.
func (f Func) Extract(path string) Metadata { return f(path) }

// Chain consults extractors in order; the first non-empty value of each
// field wins.
type Chain []Extractor

// Extract merges the results of every extractor in the chain.
func (c Chain) Extract(path string) Metadata {
	var out Metadata
	for _, extractor := range c {
		if extractor == nil {
			continue
		}
		out = out.Merge(extractor.Extract(path).trimmed())
	}
	return out
}

// Default is the extractor used by the CLI: the PDF Info dictionary first,
// then filename patterns.
func Default() Extractor {
	return Chain{PDFInfo{}, FilenameHints{}}
}
