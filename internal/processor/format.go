package processor

import "bytes"

// Format is the kind of input a command or request carries
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatYAML
	FormatXML
	FormatPDF
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatXML:
		return "xml"
	case FormatPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

var (
	pdfMagic = []byte("%PDF")
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// DetectFormat identifies input from its leading bytes
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return FormatUnknown
	}

	switch trimmed[0] {
	case '<':
		return FormatXML
	case '{':
		return FormatJSON
	}
	if looksLikeYAML(trimmed) {
		return FormatYAML
	}
	return FormatUnknown
}

// looksLikeYAML accepts a document marker or a first significant line of
// the form "key: value"
func looksLikeYAML(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if bytes.HasPrefix(line, []byte("---")) {
			return true
		}
		i := bytes.IndexByte(line, ':')
		return i > 0 && (i == len(line)-1 || line[i+1] == ' ') && !bytes.ContainsAny(line[:i], " \t\"'{}[]")
	}
	return false
}
