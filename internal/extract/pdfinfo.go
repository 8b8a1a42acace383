package extract

import (
	"bytes"
	"encoding/hex"
	"html"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	defaultHeadBytes = 4 << 20
	defaultTailBytes = 1 << 20
)

var (
	infoAnchorPattern = regexp.MustCompile(`/(?:Producer|CreationDate|Author|Creator)\s*[(<]`)
	infoKeyPattern    = regexp.MustCompile(`/(Title|Author|Producer|CreationDate|ModDate)\s*([(<])`)
	pdfDatePattern    = regexp.MustCompile(`^(?:D:)?\s*((?:1[5-9]|20)\d{2})`)

	xmpTitlePattern   = regexp.MustCompile(`(?s)<dc:title>.*?<rdf:li[^>]*>(.*?)</rdf:li>`)
	xmpCreatorPattern = regexp.MustCompile(`(?s)<dc:creator>(.*?)</dc:creator>`)
	xmpItemPattern    = regexp.MustCompile(`(?s)<rdf:li[^>]*>(.*?)</rdf:li>`)
	xmpDatePattern    = regexp.MustCompile(`xmp:CreateDate(?:>|=")\s*((?:1[5-9]|20)\d{2})`)
	xmpPublisherPat   = regexp.MustCompile(`(?s)<dc:publisher>.*?<rdf:li[^>]*>(.*?)</rdf:li>`)

	softwareProducers = []string{
		"acrobat", "distiller", "pdf", "tex", "word", "writer", "ghostscript",
		"quartz", "itext", "library", "printer", "skia", "cairo", "openoffice",
		"libreoffice", "microsoft", "adobe", "calibre", "prince",
	}
)

// PDFInfo reads the document Info dictionary and the XMP packet of a PDF.
// Only the head and tail of the file are scanned, which is where writers
// place the Info dictionary and the metadata stream; compressed object
// streams are not inflated.
type PDFInfo struct {
	HeadBytes int64
	TailBytes int64
}

// Extract returns whatever the scan finds. Unreadable files yield empty
// metadata.
func (p PDFInfo) Extract(path string) Metadata {
	data, err := p.read(path)
	if err != nil || !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return Metadata{}
	}
	info := parseInfo(data)
	return info.Merge(parseXMP(data))
}

func (p PDFInfo) read(path string) ([]byte, error) {
	head := p.HeadBytes
	if head <= 0 {
		head = defaultHeadBytes
	}
	tail := p.TailBytes
	if tail <= 0 {
		tail = defaultTailBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size <= head+tail {
		return io.ReadAll(f)
	}

	buf := make([]byte, head+tail)
	if _, err := io.ReadFull(f, buf[:head]); err != nil {
		return nil, err
	}
	if _, err := f.ReadAt(buf[head:], size-tail); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// parseInfo finds dictionaries that look like a document Info dictionary
// and keeps the last one, which is the newest after incremental updates.
func parseInfo(data []byte) Metadata {
	var best Metadata
	for _, loc := range infoAnchorPattern.FindAllIndex(data, -1) {
		start := bytes.LastIndex(data[:loc[0]], []byte("<<"))
		if start < 0 {
			continue
		}
		end := bytes.Index(data[loc[0]:], []byte(">>"))
		if end < 0 {
			continue
		}
		dict := data[start:min(len(data), loc[0]+end+2)]
		if bytes.Contains(dict, []byte("/Type")) && !bytes.Contains(dict, []byte("/Type /Info")) {
			// Page, font and annotation dictionaries carry /Type; Info
			// dictionaries normally do not.
			continue
		}
		candidate := parseInfoDict(dict)
		if candidate.Title != "" || candidate.Author != "" {
			best = candidate
		}
	}
	return best.trimmed()
}

func parseInfoDict(dict []byte) Metadata {
	var (
		out     Metadata
		created string
		mod     string
	)
	for _, m := range infoKeyPattern.FindAllSubmatchIndex(dict, -1) {
		key := string(dict[m[2]:m[3]])
		value, ok := readPDFString(dict[m[4]:])
		if !ok {
			continue
		}
		switch key {
		case "Title":
			out.Title = value
		case "Author":
			out.Author = value
		case "Producer":
			if !isSoftwareProducer(value) {
				out.Publisher = value
			}
		case "CreationDate":
			created = value
		case "ModDate":
			mod = value
		}
	}
	for _, date := range []string{created, mod} {
		if m := pdfDatePattern.FindStringSubmatch(date); m != nil {
			out.Year = m[1]
			break
		}
	}
	return out
}

// readPDFString decodes the literal or hex string at the start of data.
func readPDFString(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var raw []byte
	switch data[0] {
	case '(':
		var ok bool
		raw, ok = readLiteral(data)
		if !ok {
			return "", false
		}
	case '<':
		end := bytes.IndexByte(data, '>')
		if end < 0 {
			return "", false
		}
		digits := bytes.Map(func(r rune) rune {
			if strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return r
			}
			return -1
		}, data[1:end])
		if len(digits)%2 == 1 {
			digits = append(digits, '0')
		}
		decoded := make([]byte, hex.DecodedLen(len(digits)))
		if _, err := hex.Decode(decoded, digits); err != nil {
			return "", false
		}
		raw = decoded
	default:
		return "", false
	}
	return decodeText(raw), true
}

func readLiteral(data []byte) ([]byte, bool) {
	var out []byte
	depth := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '(':
			depth++
			if depth > 1 {
				out = append(out, c)
			}
		case c == ')':
			depth--
			if depth == 0 {
				return out, true
			}
			out = append(out, c)
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				if e == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for n := 0; n < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; n++ {
					i++
					v = v*8 + int(data[i]-'0')
				}
				out = append(out, byte(v))
			default:
				out = append(out, e)
			}
		default:
			out = append(out, c)
		}
	}
	return nil, false
}

// decodeText handles UTF-16 strings marked with a byte order mark and
// treats everything else as Latin-1, which PDFDocEncoding matches for
// printable text.
func decodeText(raw []byte) string {
	if bytes.HasPrefix(raw, []byte{0xfe, 0xff}) {
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err == nil {
			return cleanText(string(decoded))
		}
	}
	if bytes.HasPrefix(raw, []byte{0xef, 0xbb, 0xbf}) {
		return cleanText(string(raw[3:]))
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return cleanText(string(raw))
	}
	return cleanText(string(decoded))
}

func cleanText(value string) string {
	value = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return ' '
		}
		return r
	}, value)
	return strings.Join(strings.Fields(value), " ")
}

func isSoftwareProducer(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range softwareProducers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseXMP(data []byte) Metadata {
	start := bytes.Index(data, []byte("<x:xmpmeta"))
	if start < 0 {
		return Metadata{}
	}
	end := bytes.Index(data[start:], []byte("</x:xmpmeta>"))
	if end < 0 {
		return Metadata{}
	}
	packet := data[start : start+end]

	var out Metadata
	if m := xmpTitlePattern.FindSubmatch(packet); m != nil {
		out.Title = xmlText(m[1])
	}
	if m := xmpCreatorPattern.FindSubmatch(packet); m != nil {
		var names []string
		for _, item := range xmpItemPattern.FindAllSubmatch(m[1], -1) {
			if name := xmlText(item[1]); name != "" {
				names = append(names, name)
			}
		}
		out.Author = strings.Join(names, "; ")
	}
	if m := xmpDatePattern.FindSubmatch(packet); m != nil {
		out.Year = string(m[1])
	}
	if m := xmpPublisherPat.FindSubmatch(packet); m != nil {
		out.Publisher = xmlText(m[1])
	}
	return out.trimmed()
}

func xmlText(value []byte) string {
	return cleanText(html.UnescapeString(string(value)))
}
