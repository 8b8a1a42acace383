package refstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bibkeep/internal/contenthash"
)

func TestImportLegacyFillsHashesAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	refDir := filepath.Join(dir, "reference")
	if err := os.MkdirAll(refDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"Berk_Statistical_Learning_Regression_Perspective.pdf": "berk",
		"Smith_Jones_Bayesian_Methods.pdf":                     "bayes",
		"Copy_Of_Berk.pdf":                                     "berk",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(refDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	legacy := `[
  {"author": "Richard A. Berk", "year": "2008", "title": "Statistical Learning from a Regression Perspective",
   "publisher": "Springer", "filename": "Berk_Statistical_Learning_Regression_Perspective.pdf"},
  {"author": "John Smith & Anna Jones", "year": 2011, "title": "Bayesian Methods",
   "filename": "Smith_Jones_Bayesian_Methods.pdf", "file_hash": "` + strings.ToUpper(contenthash.Bytes([]byte("bayes"))) + `",
   "original_filename": "bayes-final.pdf"},
  {"author": "", "year": "n.d.", "title": "Gone", "filename": "Unknown_Gone.pdf"},
  {"author": "Berk", "year": null, "title": "Copy", "filename": "Copy_Of_Berk.pdf"}
]`
	entries, err := DecodeLegacy(strings.NewReader(legacy))
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}
	result := ImportLegacy(entries, refDir)

	if result.Imported != 2 || len(result.Records) != 2 {
		t.Fatalf("imported = %d, want 2", result.Imported)
	}
	if result.HashesFilled != 2 {
		t.Fatalf("hashes filled = %d, want 2", result.HashesFilled)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("skipped = %+v, want missing file and duplicate content", result.Skipped)
	}

	berk := result.Records[0]
	if berk.ContentHash != contenthash.Bytes([]byte("berk")) {
		t.Fatal("missing hash not computed from file")
	}
	if berk.Year == nil || *berk.Year != 2008 || berk.Status != StatusReference {
		t.Fatalf("unexpected berk record: %+v", berk)
	}
	smith := result.Records[1]
	if smith.ContentHash != contenthash.Bytes([]byte("bayes")) {
		t.Fatal("existing hash not lower-cased")
	}
	if len(smith.Authors) != 2 || smith.Authors[1] != "Anna Jones" {
		t.Fatalf("authors = %v", smith.Authors)
	}
	if smith.Year == nil || *smith.Year != 2011 || smith.OriginalFilename != "bayes-final.pdf" {
		t.Fatalf("unexpected smith record: %+v", smith)
	}
}
