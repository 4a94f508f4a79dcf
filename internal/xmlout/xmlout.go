// Package xmlout serializes projected trees into CII XML bytes.
package xmlout

import (
	"bytes"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/projection"
)

const declaration = `version="1.0" encoding="UTF-8"`

type options struct {
	indent int
}

// Option configures serialization
type Option func(*options)

// WithIndent pretty-prints the output. Off by default; indented output is
// for humans and is not what gets embedded.
func WithIndent(spaces int) Option {
	return func(o *options) {
		o.indent = spaces
	}
}

// Serialize writes the tree as UTF-8 XML with a declaration and the
// namespace declarations for every prefix in use, in the profile's declared
// order. The tree itself is left untouched.
func Serialize(t *projection.Tree, opts ...Option) ([]byte, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	doc := t.Document().Copy()
	root := doc.Root()
	if root == nil {
		return nil, model.NewProjectionError("", "tree has no root element")
	}

	if err := declareNamespaces(t, root); err != nil {
		return nil, err
	}

	doc.InsertChildAt(0, etree.NewProcInst("xml", declaration))
	doc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: false,
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	if o.indent > 0 {
		doc.Indent(o.indent)
	} else {
		doc.InsertChildAt(1, etree.NewText("\n"))
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func declareNamespaces(t *projection.Tree, root *etree.Element) error {
	used := make(map[string]bool)
	collect(root, used)

	p := t.Profile()
	var decls []etree.Attr
	for _, ns := range p.Namespaces {
		if !used[ns.Prefix] {
			continue
		}
		delete(used, ns.Prefix)
		decls = append(decls, etree.Attr{Space: "xmlns", Key: ns.Prefix, Value: ns.URI})
	}
	if len(used) > 0 {
		missing := make([]string, 0, len(used))
		for prefix := range used {
			missing = append(missing, prefix)
		}
		sort.Strings(missing)
		return model.NewProjectionError(root.FullTag(), "undeclared namespace prefixes "+strings.Join(missing, ", "))
	}

	// Declarations come first, ahead of any attributes already on the root.
	n := len(root.Attr)
	for _, d := range decls {
		root.CreateAttr(d.Space+":"+d.Key, d.Value)
	}
	added := append([]etree.Attr(nil), root.Attr[n:]...)
	root.Attr = append(added, root.Attr[:n]...)
	return nil
}

func collect(el *etree.Element, used map[string]bool) {
	if el.Space != "" {
		used[el.Space] = true
	}
	for _, a := range el.Attr {
		if a.Space != "" && a.Space != "xmlns" && a.Space != "xml" {
			used[a.Space] = true
		}
	}
	for _, c := range el.ChildElements() {
		collect(c, used)
	}
}
