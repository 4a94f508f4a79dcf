package pdfa

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/rezonia/facturx/internal/model"
)

// DocumentInfo is the document information dictionary of a PDF. Every
// field has an XMP counterpart that a PDF/A document must keep equal.
type DocumentInfo struct {
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Keywords     string    `json:"keywords,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	Producer     string    `json:"producer,omitempty"`
	Trapped      string    `json:"trapped,omitempty"`
	CreationDate time.Time `json:"creationDate,omitempty"`
	ModDate      time.Time `json:"modDate,omitempty"`
}

func (i *DocumentInfo) texts() map[string]*string {
	return map[string]*string{
		"Title":    &i.Title,
		"Author":   &i.Author,
		"Subject":  &i.Subject,
		"Keywords": &i.Keywords,
		"Creator":  &i.Creator,
		"Producer": &i.Producer,
	}
}

// dict builds the Info dictionary: extra holds entries without an XMP
// counterpart, which are carried over unchanged.
func (i DocumentInfo) dict(extra types.Dict) types.Dict {
	d := types.Dict{}
	for k, v := range extra {
		d[k] = v
	}
	for key, value := range i.texts() {
		if *value != "" {
			d[key] = encodeText(*value)
		}
	}
	if !i.CreationDate.IsZero() {
		d["CreationDate"] = types.StringLiteral(types.DateString(i.CreationDate))
	}
	if !i.ModDate.IsZero() {
		d["ModDate"] = types.StringLiteral(types.DateString(i.ModDate))
	}
	if i.Trapped != "" {
		d["Trapped"] = types.Name(i.Trapped)
	}
	return d
}

// readInfo decodes the document information dictionary. Unreadable
// entries are dropped.
func readInfo(ctx *pdfmodel.Context) (DocumentInfo, types.Dict) {
	var info DocumentInfo
	extra := types.Dict{}
	if ctx.Info == nil {
		return info, extra
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return info, extra
	}

	texts := info.texts()
	for key, value := range d {
		obj, err := ctx.Dereference(value)
		if err != nil || obj == nil {
			continue
		}
		switch key {
		case "Trapped":
			if name, ok := obj.(types.Name); ok {
				info.Trapped = string(name)
			}
		case "CreationDate", "ModDate":
			s, ok := decodeText(obj)
			if !ok {
				continue
			}
			if t, ok := parseDate(s); ok {
				if key == "CreationDate" {
					info.CreationDate = t
				} else {
					info.ModDate = t
				}
			}
		default:
			if field, ok := texts[key]; ok {
				if s, ok := decodeText(obj); ok {
					*field = s
				}
				continue
			}
			extra[key] = value
		}
	}
	return info, extra
}

// ReadDocumentInfo returns the document information dictionary of pdf's
// latest revision.
func ReadDocumentInfo(pdf []byte) (*DocumentInfo, error) {
	ctx, err := readContext("info", pdf)
	if err != nil {
		return nil, err
	}
	info, _ := readInfo(ctx)
	return &info, nil
}

// appendInfo writes an incremental update that replaces the Info object.
// pdfcpu stamps its own producer and dates on Info while writing, so the
// final values live in a revision of their own.
func appendInfo(out *bytes.Buffer, ctx *pdfmodel.Context, d types.Dict) error {
	if ctx.Info == nil || ctx.Root == nil || ctx.Size == nil {
		return errors.New("written document has no trailer information")
	}
	prev, err := lastXRefOffset(out.Bytes())
	if err != nil {
		return err
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}

	ref := *ctx.Info
	num, gen := ref.ObjectNumber.Value(), ref.GenerationNumber.Value()
	offset := out.Len()
	fmt.Fprintf(out, "%d %d obj\n%s\nendobj\n", num, gen, d.PDFString())

	xref := out.Len()
	fmt.Fprintf(out, "xref\n%d 1\n%010d %05d n\r\n", num, offset, gen)
	trailer := types.Dict{
		"Size": types.Integer(*ctx.Size),
		"Root": *ctx.Root,
		"Info": ref,
		"Prev": types.Integer(prev),
	}
	if ctx.ID != nil {
		trailer["ID"] = ctx.ID
	}
	fmt.Fprintf(out, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer.PDFString(), xref)
	return nil
}

func lastXRefOffset(pdf []byte) (int64, error) {
	i := bytes.LastIndex(pdf, []byte("startxref"))
	if i < 0 {
		return 0, model.NewPdfStructureError("write", "no startxref in written document", nil)
	}
	fields := bytes.Fields(pdf[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, model.NewPdfStructureError("write", "no startxref in written document", nil)
	}
	return strconv.ParseInt(string(fields[0]), 10, 64)
}
