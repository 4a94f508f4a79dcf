// Package pdfatest builds small, well-formed PDF documents for tests
package pdfatest

import (
	"bytes"
	"fmt"
)

type attachment struct {
	name string
	data []byte
}

type infoEntry struct {
	key, value string
}

type builder struct {
	version     string
	metadata    []byte
	info        []infoEntry
	attachments []attachment
}

// Option configures the generated document
type Option func(*builder)

// WithVersion sets the header version, "1.4" by default
func WithVersion(v string) Option {
	return func(b *builder) {
		b.version = v
	}
}

// WithMetadata adds an uncompressed XMP metadata stream to the catalog
func WithMetadata(xmp []byte) Option {
	return func(b *builder) {
		b.metadata = xmp
	}
}

// WithTitle adds an Info dictionary with the given title
func WithTitle(title string) Option {
	return WithInfo("Title", title)
}

// WithInfo adds a literal string entry to the Info dictionary. Documents
// with an Info dictionary name pdfatest as their producer unless an entry
// says otherwise.
func WithInfo(key, value string) Option {
	return func(b *builder) {
		b.info = append(b.info, infoEntry{key: key, value: value})
	}
}

// WithAttachment adds a file to the /EmbeddedFiles name tree only, the way
// ordinary PDF writers attach files.
func WithAttachment(name string, data []byte) Option {
	return func(b *builder) {
		b.attachments = append(b.attachments, attachment{name: name, data: data})
	}
}

// New returns a one-page PDF
func New(opts ...Option) []byte {
	b := &builder{version: "1.4"}
	for _, opt := range opts {
		opt(b)
	}

	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	content := "BT /F1 12 Tf 72 720 Td (Invoice) Tj ET"
	catalog := add("")
	pages := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	contents := add(stream("", []byte(content)))
	page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 595 842] "+
		"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", pages, font, contents))
	objects[pages-1] = fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page)

	cat := fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R", pages)
	if b.metadata != nil {
		md := add(stream("/Type /Metadata /Subtype /XML", b.metadata))
		cat += fmt.Sprintf(" /Metadata %d 0 R", md)
	}
	if len(b.attachments) > 0 {
		var leaf bytes.Buffer
		for _, a := range b.attachments {
			ef := add(stream("/Type /EmbeddedFile", a.data))
			spec := add(fmt.Sprintf("<< /Type /Filespec /F (%s) /UF (%s) /EF << /F %d 0 R >> >>", a.name, a.name, ef))
			fmt.Fprintf(&leaf, "(%s) %d 0 R ", a.name, spec)
		}
		cat += fmt.Sprintf(" /Names << /EmbeddedFiles << /Names [%s] >> >>", bytes.TrimSpace(leaf.Bytes()))
	}
	objects[catalog-1] = cat + " >>"

	info := 0
	if len(b.info) > 0 {
		dict := "<<"
		producer := false
		for _, e := range b.info {
			dict += fmt.Sprintf(" /%s (%s)", e.key, e.value)
			producer = producer || e.key == "Producer"
		}
		if !producer {
			dict += " /Producer (pdfatest)"
		}
		info = add(dict + " >>")
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", b.version)
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n\r\n", off)
	}
	trailer := fmt.Sprintf("/Size %d /Root %d 0 R", len(objects)+1, catalog)
	if info > 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", info)
	}
	fmt.Fprintf(&out, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return out.Bytes()
}

func stream(dict string, data []byte) string {
	if dict != "" {
		dict += " "
	}
	return fmt.Sprintf("<< %s/Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}
