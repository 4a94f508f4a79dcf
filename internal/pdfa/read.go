package pdfa

import (
	"strings"
	"time"

	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/rezonia/facturx/internal/model"
)

// ListEmbeddedFiles returns every file attached to pdf, found through the
// catalog's /AF array and the /EmbeddedFiles name tree. Associated files
// come first; a specification reachable both ways is listed once.
func ListEmbeddedFiles(pdf []byte) ([]model.EmbeddedFile, error) {
	ctx, err := readContext("list", pdf)
	if err != nil {
		return nil, err
	}
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, model.NewPdfStructureError("list", "document has no catalog", err)
	}

	var specs []types.Object
	af, err := ctx.DereferenceArray(catalog["AF"])
	if err != nil {
		return nil, model.NewPdfStructureError("list", "unreadable /AF array", err)
	}
	specs = append(specs, af...)

	names, err := ctx.DereferenceDict(catalog["Names"])
	if err != nil {
		return nil, model.NewPdfStructureError("list", "unreadable /Names dictionary", err)
	}
	if names != nil {
		entries, err := flattenNameTree(ctx, names["EmbeddedFiles"], 0)
		if err != nil {
			return nil, model.NewPdfStructureError("list", "unreadable /EmbeddedFiles name tree", err)
		}
		for _, e := range entries {
			specs = append(specs, e.value)
		}
	}

	files := []model.EmbeddedFile{}
	seen := map[int]bool{}
	for _, spec := range specs {
		if ref, ok := spec.(types.IndirectRef); ok {
			if seen[ref.ObjectNumber.Value()] {
				continue
			}
			seen[ref.ObjectNumber.Value()] = true
		}
		f, err := readFileSpec(ctx, spec)
		if err != nil {
			return nil, model.NewPdfStructureError("list", "unreadable file specification", err)
		}
		if f != nil {
			files = append(files, *f)
		}
	}
	return files, nil
}

// readFileSpec decodes a file specification and its embedded stream. A
// specification without an embedded file yields nil.
func readFileSpec(ctx *pdfmodel.Context, obj types.Object) (*model.EmbeddedFile, error) {
	spec, err := ctx.DereferenceDict(obj)
	if err != nil || spec == nil {
		return nil, err
	}
	ef, err := ctx.DereferenceDict(spec["EF"])
	if err != nil || ef == nil {
		return nil, err
	}
	streamObj := ef["UF"]
	if streamObj == nil {
		streamObj = ef["F"]
	}
	if streamObj == nil {
		return nil, nil
	}

	name, _ := fileSpecName(ctx, obj)
	f := &model.EmbeddedFile{Name: name}
	if desc, err := ctx.Dereference(spec["Desc"]); err == nil && desc != nil {
		f.Description, _ = decodeText(desc)
	}
	if rel, ok := spec["AFRelationship"].(types.Name); ok {
		f.Relationship = model.Relationship(rel)
	}

	f.Data, err = streamContent(ctx, streamObj)
	if err != nil {
		return nil, err
	}
	if stream, err := ctx.Dereference(streamObj); err == nil {
		f.MimeType, f.ModDate = streamInfo(ctx, stream)
	}
	return f, nil
}

func streamInfo(ctx *pdfmodel.Context, obj types.Object) (string, time.Time) {
	var d types.Dict
	switch s := obj.(type) {
	case types.StreamDict:
		d = s.Dict
	case *types.StreamDict:
		d = s.Dict
	default:
		return "", time.Time{}
	}
	var mime string
	if subtype, ok := d["Subtype"].(types.Name); ok {
		mime = strings.ReplaceAll(string(subtype), "#2F", "/")
	}
	var mod time.Time
	if params, err := ctx.DereferenceDict(d["Params"]); err == nil && params != nil {
		if v, err := ctx.Dereference(params["ModDate"]); err == nil && v != nil {
			if s, ok := decodeText(v); ok {
				mod, _ = parseDate(s)
			}
		}
	}
	return mime, mod
}

// Metadata returns the PDF/A and Factur-X identification from the
// document's XMP metadata, or nil when the document has none.
func Metadata(pdf []byte) (*XMPInfo, error) {
	ctx, err := readContext("metadata", pdf)
	if err != nil {
		return nil, err
	}
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, model.NewPdfStructureError("metadata", "document has no catalog", err)
	}
	ref, ok := catalog["Metadata"]
	if !ok {
		return nil, nil
	}
	raw, err := streamContent(ctx, ref)
	if err != nil {
		return nil, model.NewPdfStructureError("metadata", "unreadable metadata stream", err)
	}
	info, err := readXMP(raw)
	if err != nil {
		return nil, model.NewPdfStructureError("metadata", "malformed XMP packet", err)
	}
	return info, nil
}

// Version returns the effective PDF version, such as "1.7"
func Version(pdf []byte) (string, error) {
	ctx, err := readContext("version", pdf)
	if err != nil {
		return "", err
	}
	catalog, err := ctx.Catalog()
	if err != nil {
		return "", model.NewPdfStructureError("version", "document has no catalog", err)
	}
	return documentVersion(ctx, catalog).String(), nil
}

// parseDate reads a PDF date string such as D:20240301120000+01'00'
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	s = strings.ReplaceAll(s, "'", "")
	if len(s) < 4 {
		return time.Time{}, false
	}
	digits := len(s)
	for i, r := range s {
		if r < '0' || r > '9' {
			digits = i
			break
		}
	}
	layout := "20060102150405"[:min(digits, 14)]
	t, err := time.Parse(layout, s[:len(layout)])
	if err != nil {
		return time.Time{}, false
	}
	zone := s[len(layout):]
	if zone == "" || zone == "Z" || len(zone) < 3 {
		return t, true
	}
	if len(zone) < 5 {
		zone += "00"
	}
	tz, err := time.Parse("-0700", zone[:5])
	if err != nil {
		return t, true
	}
	_, offset := tz.Zone()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone("", offset)), true
}
