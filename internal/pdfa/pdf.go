package pdfa

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/unicode"

	"github.com/rezonia/facturx/internal/model"
)

// maxNameTreeDepth bounds recursion through /Kids of a name tree
const maxNameTreeDepth = 32

var configOnce sync.Once

// configuration returns a relaxed pdfcpu configuration that never touches
// the user's config directory. Documents are written with classic
// cross-reference tables so the Info update appended by Embed extends them.
func configuration() *pdfmodel.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// readContext parses a private copy of pdf. pdfcpu panics on some broken
// inputs; those surface as structure errors.
func readContext(op string, pdf []byte) (ctx *pdfmodel.Context, err error) {
	if len(pdf) == 0 {
		return nil, model.NewPdfStructureError(op, "empty input", nil)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(pdf, "\x00\t\n\f\r "), []byte("%PDF-")) {
		return nil, model.NewPdfStructureError(op, "missing %PDF- header", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = model.NewPdfStructureError(op, "unreadable document", fmt.Errorf("%v", r))
		}
	}()

	data := bytes.Clone(pdf)
	ctx, err = api.ReadContext(bytes.NewReader(data), configuration())
	if err != nil {
		return nil, model.NewPdfStructureError(op, "unreadable document", err)
	}
	return ctx, nil
}

func writeContext(ctx *pdfmodel.Context, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.NewPdfStructureError("write", "cannot serialize document", fmt.Errorf("%v", r))
		}
	}()
	if err := api.WriteContext(ctx, w); err != nil {
		return model.NewPdfStructureError("write", "cannot serialize document", err)
	}
	return nil
}

// documentVersion is the catalog /Version when present, else the header
// version.
func documentVersion(ctx *pdfmodel.Context, catalog types.Dict) pdfmodel.Version {
	if name, ok := catalog["Version"].(types.Name); ok {
		if v, err := pdfmodel.PDFVersion(string(name)); err == nil {
			return v
		}
	}
	if ctx.HeaderVersion != nil {
		return *ctx.HeaderVersion
	}
	return pdfmodel.V17
}

// streamContent returns the decoded content of the stream obj refers to
func streamContent(ctx *pdfmodel.Context, obj types.Object) ([]byte, error) {
	o, err := ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}
	var sd types.StreamDict
	switch s := o.(type) {
	case types.StreamDict:
		sd = s
	case *types.StreamDict:
		if s == nil {
			return nil, errors.New("nil stream")
		}
		sd = *s
	default:
		return nil, fmt.Errorf("expected stream, got %T", o)
	}
	if sd.Content == nil {
		if err := sd.Decode(); err != nil {
			return nil, err
		}
	}
	return bytes.Clone(sd.Content), nil
}

type nameEntry struct {
	name  string
	value types.Object
}

// flattenNameTree collects every leaf entry of a name tree in order
func flattenNameTree(ctx *pdfmodel.Context, obj types.Object, depth int) ([]nameEntry, error) {
	if obj == nil {
		return nil, nil
	}
	if depth > maxNameTreeDepth {
		return nil, errors.New("name tree too deep")
	}
	node, err := ctx.DereferenceDict(obj)
	if err != nil || node == nil {
		return nil, err
	}

	var out []nameEntry
	if kids, ok := node["Kids"]; ok {
		arr, err := ctx.DereferenceArray(kids)
		if err != nil {
			return nil, err
		}
		for _, kid := range arr {
			entries, err := flattenNameTree(ctx, kid, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		}
	}
	if names, ok := node["Names"]; ok {
		arr, err := ctx.DereferenceArray(names)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(arr); i += 2 {
			key, err := ctx.Dereference(arr[i])
			if err != nil {
				return nil, err
			}
			name, ok := decodeText(key)
			if !ok {
				continue
			}
			out = append(out, nameEntry{name: name, value: arr[i+1]})
		}
	}
	return out, nil
}

// fileSpecName returns the UF or F entry of a file specification
func fileSpecName(ctx *pdfmodel.Context, obj types.Object) (string, bool) {
	spec, err := ctx.DereferenceDict(obj)
	if err != nil || spec == nil {
		return "", false
	}
	for _, key := range []string{"UF", "F"} {
		v, err := ctx.Dereference(spec[key])
		if err != nil || v == nil {
			continue
		}
		if name, ok := decodeText(v); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// decodeText turns a PDF text string, literal or hex, into UTF-8
func decodeText(obj types.Object) (string, bool) {
	var raw []byte
	switch v := obj.(type) {
	case types.StringLiteral:
		raw = unescape(string(v))
	case types.HexLiteral:
		b, err := hex.DecodeString(padHex(string(v)))
		if err != nil {
			return "", false
		}
		raw = b
	case types.Name:
		return string(v), true
	default:
		return "", false
	}
	if bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) || bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		s, err := dec.Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(s), true
	}
	return string(raw), true
}

func padHex(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(" \t\r\n\f", r) {
			return -1
		}
		return r
	}, s)
	if len(s)%2 == 1 {
		s += "0"
	}
	return s
}

// unescape resolves the backslash escapes of a literal string body
func unescape(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch c = s[i]; c {
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
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\n':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 8)
			out = append(out, byte(n))
			i = j - 1
		default:
			out = append(out, c)
		}
	}
	return out
}

var escaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`)

// escape prepares s for a literal string body
func escape(s string) string {
	return escaper.Replace(s)
}

// encodeText returns s as a PDF text string: a literal for ASCII, UTF-16BE
// hex with a byte order mark otherwise.
func encodeText(s string) types.Object {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return types.StringLiteral(escape(s))
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return types.StringLiteral(escape(s))
	}
	return types.HexLiteral(strings.ToUpper(hex.EncodeToString(b)))
}
