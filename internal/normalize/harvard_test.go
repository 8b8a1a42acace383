package normalize

import "testing"

func intPtr(v int) *int { return &v }

func TestHarvardReference(t *testing.T) {
	tests := []struct {
		name string
		in   Citation
		want string
	}{
		{
			name: "single author with initials",
			in:   Citation{Authors: []string{"Richard A. Berk"}, Year: intPtr(2008), Title: "Statistical Learning from a Regression Perspective", Publisher: "Springer"},
			want: "Berk, R. A. (2008) Statistical Learning from a Regression Perspective. Springer.",
		},
		{
			name: "two authors no year no publisher",
			in:   Citation{Authors: []string{"John Smith", "Alice Jones"}, Title: "Test"},
			want: "Smith, J. and Jones, A. (n.d.) Test.",
		},
		{
			name: "three authors",
			in:   Citation{Authors: []string{"Trevor Hastie", "Robert Tibshirani", "Jerome Friedman"}, Year: intPtr(2009), Title: "The Elements of Statistical Learning", Publisher: "Springer"},
			want: "Hastie, T. et al. (2009) The Elements of Statistical Learning. Springer.",
		},
		{
			name: "explicit et al surname only",
			in:   Citation{Authors: []string{"Kandel", EtAl}, Year: intPtr(2013), Title: "Principles of Neural Science"},
			want: "Kandel et al. (2013) Principles of Neural Science.",
		},
		{
			name: "unknown author untitled",
			in:   Citation{Authors: []string{UnknownAuthor}, Year: intPtr(2020), Publisher: "Pub."},
			want: "Unknown (2020) Untitled. Pub.",
		},
		{
			name: "question mark title",
			in:   Citation{Authors: []string{"Hastie"}, Title: "What Is Learning?"},
			want: "Hastie (n.d.) What Is Learning?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HarvardReference(tt.in)
			if got != tt.want {
				t.Fatalf("HarvardReference() = %q, want %q", got, tt.want)
			}
			if again := HarvardReference(tt.in); again != got {
				t.Fatalf("HarvardReference not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"2019", 2019},
		{"Published 1998, reprinted 2005", 1998},
		{"2019_Book_Title", 2019},
		{"(c) 2011 Springer", 2011},
	}
	for _, tt := range tests {
		got := ParseYear(tt.raw)
		if got == nil || *got != tt.want {
			t.Fatalf("ParseYear(%q) = %v, want %d", tt.raw, got, tt.want)
		}
	}
	for _, raw := range []string{"", "n.d.", "12345", "v3.2"} {
		if got := ParseYear(raw); got != nil {
			t.Fatalf("ParseYear(%q) = %d, want nil", raw, *got)
		}
	}
}
