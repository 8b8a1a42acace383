package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// PDFInfo is the Info dictionary written by WritePDF.
type PDFInfo struct {
	Title  string
	Author string
	Year   int
	// Body makes otherwise identical documents hash differently.
	Body string
}

// WritePDF writes a minimal PDF carrying info in its Info dictionary and
// returns its path.
func WritePDF(t testing.TB, path string, info PDFInfo) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	fmt.Fprintf(&b, "2 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(info.Body), info.Body)
	b.WriteString("3 0 obj\n<<")
	if info.Title != "" {
		fmt.Fprintf(&b, " /Title (%s)", escapePDF(info.Title))
	}
	if info.Author != "" {
		fmt.Fprintf(&b, " /Author (%s)", escapePDF(info.Author))
	}
	if info.Year > 0 {
		fmt.Fprintf(&b, " /CreationDate (D:%04d0101000000Z)", info.Year)
	}
	b.WriteString(" /Producer (pdfTeX-1.40) >>\nendobj\n")
	b.WriteString("trailer\n<< /Root 1 0 R /Info 3 0 R >>\n%%EOF\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func escapePDF(value string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(value)
}
