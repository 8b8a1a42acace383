package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation is the subset of a record needed to render a reference line.
type Citation struct {
	Authors   []string
	Year      *int
	Title     string
	Publisher string
}

// HarvardReference renders a single-line Harvard reference:
//
//	Berk, R. A. (2008) Statistical Learning from a Regression Perspective. Springer.
//
// Two authors are joined with "and"; three or more, or an explicit et al,
// render the first author followed by "et al.". A missing year renders as
// "n.d." and an empty publisher is omitted.
func HarvardReference(c Citation) string {
	var b strings.Builder
	b.WriteString(harvardAuthors(c.Authors))
	b.WriteString(" (")
	if c.Year != nil {
		b.WriteString(strconv.Itoa(*c.Year))
	} else {
		b.WriteString("n.d.")
	}
	b.WriteString(") ")

	title := strings.Join(strings.Fields(c.Title), " ")
	if title == "" {
		title = UntitledTitle
	}
	b.WriteString(terminate(title))

	if publisher := strings.Join(strings.Fields(c.Publisher), " "); publisher != "" {
		b.WriteByte(' ')
		b.WriteString(terminate(publisher))
	}
	return b.String()
}

func harvardAuthors(authors []string) string {
	names, etAl := RealAuthors(authors)
	known := names[:0:0]
	for _, name := range names {
		if !IsUnknownAuthor(name) {
			known = append(known, name)
		}
	}
	switch {
	case len(known) == 0:
		return UnknownAuthor
	case etAl || len(known) >= 3:
		return harvardName(known[0]) + " et al."
	case len(known) == 2:
		return harvardName(known[0]) + " and " + harvardName(known[1])
	default:
		return harvardName(known[0])
	}
}

func harvardName(name string) string {
	surname := Surname(name)
	if initials := Initials(name); initials != "" {
		return surname + ", " + initials
	}
	return surname
}

func terminate(value string) string {
	if strings.HasSuffix(value, ".") || strings.HasSuffix(value, "?") || strings.HasSuffix(value, "!") {
		return value
	}
	return value + "."
}

var yearPattern = regexp.MustCompile(`(?:^|[^0-9])(1[5-9]\d{2}|20\d{2})(?:[^0-9]|$)`)

// ParseYear extracts the first plausible four-digit year from raw. It
// returns nil for empty input, "n.d." and strings without a year.
func ParseYear(raw string) *int {
	match := yearPattern.FindStringSubmatch(raw)
	if match == nil {
		return nil
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &year
}
