package review

import (
	"fmt"
	"regexp"
	"strings"

	"bibkeep/internal/config"
	"bibkeep/internal/faults"
	"bibkeep/internal/matcher"
	"bibkeep/internal/normalize"
)

// Rules carries the tunable inputs of detection.
type Rules struct {
	Threshold         float64
	MaxFilenameLength int
	OffTopic          []*regexp.Regexp
}

// RulesFromConfig compiles the detection rules of cfg.
func RulesFromConfig(cfg *config.Config) (Rules, error) {
	rules := Rules{
		Threshold:         cfg.Matching.SimilarityThreshold,
		MaxFilenameLength: cfg.Ingest.MaxFilenameLength,
	}
	for _, pattern := range cfg.Review.OffTopicPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return Rules{}, faults.Wrap(faults.ErrConfiguration, "review", "off-topic pattern", pattern, err)
		}
		rules.OffTopic = append(rules.OffTopic, re)
	}
	return rules.withDefaults(), nil
}

func (r Rules) withDefaults() Rules {
	if r.Threshold <= 0 {
		r.Threshold = matcher.DefaultThreshold
	}
	if r.MaxFilenameLength <= 0 {
		r.MaxFilenameLength = normalize.DefaultMaxFilenameLength
	}
	return r
}

type titleRule struct {
	reason string
	match  func(title string) bool
}

var (
	isbnTitle        = regexp.MustCompile(`^978\d{10}`)
	extensionTitle   = regexp.MustCompile(`(?i)\.(pdf|dvi|tex|indd|docx?)$`)
	identifierPrefix = regexp.MustCompile(`^(PII:|DOI:)`)
	lectureTitle     = regexp.MustCompile(`^Lecture \d+$`)
	artifactTitles   = []*regexp.Regexp{
		regexp.MustCompile(`Combined DVI Document`),
		regexp.MustCompile(`Conference Proceedings Document$`),
		regexp.MustCompile(`^Microsoft Word - `),
		regexp.MustCompile(`CITY UNIVERSITY$`),
	}
	placeholderTitles = map[string]struct{}{
		"my title":         {},
		"untitled":         {},
		"data driven":      {},
		"deep learning":    {},
		"machine learning": {},
	}
)

var titleRules = []titleRule{
	{"underscores in title", func(t string) bool {
		return strings.Contains(t, "_") && !strings.HasPrefix(t, "9781")
	}},
	{"generic placeholder title", func(t string) bool {
		_, ok := placeholderTitles[strings.ToLower(strings.TrimSpace(t))]
		return ok
	}},
	{"title is an ISBN", isbnTitle.MatchString},
	{"all caps title", func(t string) bool {
		return len(t) > 15 && strings.Contains(t, " ") && strings.ToUpper(t) == t && strings.ToLower(t) != t
	}},
	{"title ends with a file extension", extensionTitle.MatchString},
	{"ambiguous short title", lectureTitle.MatchString},
	{"identifier prefix in title", identifierPrefix.MatchString},
	{"line break in title", func(t string) bool {
		return strings.ContainsAny(t, "\r\n")
	}},
	{"metadata artifact in title", func(t string) bool {
		for _, re := range artifactTitles {
			if re.MatchString(t) {
				return true
			}
		}
		return false
	}},
}

// BrokenTitleReasons lists every rule title violates, in rule order.
func (r Rules) BrokenTitleReasons(title string) []string {
	var reasons []string
	if strings.TrimSpace(title) == "" {
		return []string{"empty title"}
	}
	for _, rule := range titleRules {
		if rule.match(title) {
			reasons = append(reasons, rule.reason)
		}
	}
	for _, re := range r.OffTopic {
		if re.MatchString(title) {
			reasons = append(reasons, fmt.Sprintf("off-topic title matches %q", strings.TrimPrefix(re.String(), "(?i)")))
		}
	}
	return reasons
}
