package extract

import (
	"os"
	"path/filepath"
	"testing"
)

func writePDF(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPDFInfoReadsInfoDictionary(t *testing.T) {
	body := "%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R /Outlines 4 0 R >>\nendobj\n" +
		"4 0 obj\n<< /Title (Chapter 1) /Parent 3 0 R >>\nendobj\n" +
		"5 0 obj\n<< /Title (The Elements of Statistical Learning) /Author (Trevor Hastie; Robert Tibshirani)" +
		" /Producer (Springer) /CreationDate (D:20090512093000Z) >>\nendobj\n" +
		"trailer\n<< /Root 1 0 R /Info 5 0 R >>\n%%EOF\n"
	got := PDFInfo{}.Extract(writePDF(t, "esl.pdf", body))

	want := Metadata{
		Author:    "Trevor Hastie; Robert Tibshirani",
		Title:     "The Elements of Statistical Learning",
		Year:      "2009",
		Publisher: "Springer",
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPDFInfoDecodesStrings(t *testing.T) {
	body := "%PDF-1.7\n" +
		"9 0 obj\n<< /Title <FEFF00440065006500700020004C006500610072006E0069006E0067>" +
		" /Author (Caf\\351 \\(ed.\\)) /Producer (Adobe PDF Library 15.0) /ModDate (D:2016) >>\nendobj\n"
	got := PDFInfo{}.Extract(writePDF(t, "dl.pdf", body))

	if got.Title != "Deep Learning" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Author != "Café (ed.)" {
		t.Errorf("author = %q", got.Author)
	}
	if got.Publisher != "" {
		t.Errorf("software producer leaked into publisher: %q", got.Publisher)
	}
	if got.Year != "2016" {
		t.Errorf("year = %q", got.Year)
	}
}

func TestPDFInfoFallsBackToXMP(t *testing.T) {
	body := "%PDF-1.5\n" +
		"<x:xmpmeta xmlns:x=\"adobe:ns:meta/\"><rdf:RDF><rdf:Description>" +
		"<dc:title><rdf:Alt><rdf:li xml:lang=\"x-default\">Pattern Recognition &amp; Machine Learning</rdf:li></rdf:Alt></dc:title>" +
		"<dc:creator><rdf:Seq><rdf:li>Christopher M. Bishop</rdf:li></rdf:Seq></dc:creator>" +
		"<xmp:CreateDate>2006-08-17T10:00:00Z</xmp:CreateDate>" +
		"</rdf:Description></rdf:RDF></x:xmpmeta>\n%%EOF\n"
	got := PDFInfo{}.Extract(writePDF(t, "prml.pdf", body))

	want := Metadata{
		Author: "Christopher M. Bishop",
		Title:  "Pattern Recognition & Machine Learning",
		Year:   "2006",
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPDFInfoIgnoresNonPDF(t *testing.T) {
	got := PDFInfo{}.Extract(writePDF(t, "notes.pdf", "<< /Title (Fake) /Author (Nobody) >>"))
	if !got.Empty() {
		t.Fatalf("expected empty metadata, got %+v", got)
	}
	if got := (PDFInfo{}).Extract(filepath.Join(t.TempDir(), "missing.pdf")); !got.Empty() {
		t.Fatalf("expected empty metadata for missing file, got %+v", got)
	}
}

func TestPDFInfoScansTail(t *testing.T) {
	padding := make([]byte, 4096)
	for i := range padding {
		padding[i] = 'x'
	}
	body := "%PDF-1.4\n" + string(padding) +
		"\n7 0 obj\n<< /Author (Late Writer) /Title (Appended) /CreationDate (D:2020) >>\nendobj\n"
	got := PDFInfo{HeadBytes: 512, TailBytes: 256}.Extract(writePDF(t, "late.pdf", body))
	if got.Title != "Appended" || got.Author != "Late Writer" {
		t.Fatalf("tail not scanned: %+v", got)
	}
}

func TestFilenameHints(t *testing.T) {
	cases := []struct {
		name string
		want Metadata
	}{
		{"[Goodfellow]Deep_Learning.pdf", Metadata{Author: "Goodfellow", Title: "Deep Learning"}},
		{"2009-Hastie-Elements of Statistical Learning.pdf", Metadata{Year: "2009", Author: "Hastie", Title: "Elements of Statistical Learning"}},
		{"2015_Book_IntroductionToProbability.pdf", Metadata{Year: "2015", Title: "IntroductionToProbability"}},
		{"1706.03762 Attention Is All You Need.pdf", Metadata{Title: "Attention Is All You Need"}},
		{"1706.03762v5.pdf", Metadata{}},
		{"lecture-notes-2019-final.pdf", Metadata{Year: "2019"}},
		{"scan.pdf", Metadata{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (FilenameHints{}).Extract(filepath.Join("/inbox", tc.name)); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestChainFirstNonEmptyFieldWins(t *testing.T) {
	first := Func(func(string) Metadata { return Metadata{Title: "  From   PDF  "} })
	second := Func(func(string) Metadata { return Metadata{Title: "From Name", Author: "Hastie", Year: "2009"} })
	got := Chain{first, nil, second}.Extract("x.pdf")

	want := Metadata{Title: "From PDF", Author: "Hastie", Year: "2009"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
