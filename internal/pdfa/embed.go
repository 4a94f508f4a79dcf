// Package pdfa turns a rendered PDF into a PDF/A-3 hybrid invoice by
// embedding the CII XML as an associated file and declaring it in the XMP
// metadata. It also reads embedded files and metadata back.
package pdfa

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/schema"
)

type options struct {
	now          func() time.Time
	description  string
	relationship model.Relationship
	producer     string
}

// Option configures Embed
type Option func(*options)

// WithClock sets the time source for modification dates
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDescription sets the file specification description
func WithDescription(desc string) Option {
	return func(o *options) {
		o.description = desc
	}
}

// WithRelationship overrides the associated file relationship. Factur-X
// uses Alternative; some national profiles ask for Data or Source.
func WithRelationship(rel model.Relationship) Option {
	return func(o *options) {
		o.relationship = rel
	}
}

// WithProducer records the producing application in the Info dictionary
// and the XMP metadata
func WithProducer(producer string) Option {
	return func(o *options) {
		o.producer = producer
	}
}

// Embed returns a copy of pdf carrying xml as the profile's associated
// file, with PDF/A-3b and Factur-X identification in its XMP metadata.
// The Info dictionary and the XMP packet carry the same producer, dates
// and descriptive entries. The input slice is never modified; on error no
// output is produced.
func Embed(pdf, xml []byte, p *schema.Profile, opts ...Option) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("pdfa: no profile")
	}
	o := &options{
		now:          time.Now,
		relationship: model.RelationshipAlternative,
		description:  "Factur-X invoice (" + p.ConformanceLevel + ")",
	}
	for _, opt := range opts {
		opt(o)
	}

	ctx, err := readContext("embed", pdf)
	if err != nil {
		return nil, err
	}
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, model.NewPdfStructureError("embed", "document has no catalog", err)
	}
	if ctx.Encrypt != nil {
		return nil, model.NewPdfStructureError("embed", "encrypted documents cannot conform to PDF/A", nil)
	}

	now := o.now()
	info, extra := readInfo(ctx)
	info.ModDate = now
	if info.CreationDate.IsZero() {
		info.CreationDate = now
	}
	if o.producer != "" {
		info.Producer = o.producer
	}

	file := model.EmbeddedFile{
		Name:         p.AttachmentFileName,
		MimeType:     model.MimeTypeXML,
		Description:  o.description,
		Relationship: o.relationship,
		ModDate:      now,
		Data:         xml,
	}

	e := &embedder{ctx: ctx, catalog: catalog}
	steps := []func() error{
		func() error { return e.attach(file) },
		func() error { return e.metadata(xmpFields{profile: p, fileName: file.Name, info: info}) },
		e.version,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := writeContext(ctx, &out); err != nil {
		return nil, err
	}
	if err := appendInfo(&out, ctx, info.dict(extra)); err != nil {
		return nil, model.NewPdfStructureError("embed", "cannot write document information", err)
	}
	return out.Bytes(), nil
}

type embedder struct {
	ctx     *pdfmodel.Context
	catalog types.Dict

	fileSpec *types.IndirectRef
}

// attach writes the embedded file stream and its file specification, then
// links the specification from the catalog's /AF array and the
// /EmbeddedFiles name tree.
func (e *embedder) attach(f model.EmbeddedFile) error {
	sum := md5.Sum(f.Data)
	params := types.Dict{
		"Size":     types.Integer(f.Size()),
		"ModDate":  types.StringLiteral(types.DateString(f.ModDate)),
		"CheckSum": types.HexLiteral(hex.EncodeToString(sum[:])),
	}
	stream := newStream(types.Dict{
		"Type":    types.Name("EmbeddedFile"),
		"Subtype": types.Name(f.MimeType),
		"Params":  params,
	}, f.Data)

	streamRef, err := e.ctx.IndRefForNewObject(stream)
	if err != nil {
		return model.NewPdfStructureError("embed", "cannot add embedded file stream", err)
	}

	spec := types.Dict{
		"Type":           types.Name("Filespec"),
		"F":              encodeText(f.Name),
		"UF":             encodeText(f.Name),
		"AFRelationship": types.Name(string(f.Relationship)),
		"EF": types.Dict{
			"F":  *streamRef,
			"UF": *streamRef,
		},
	}
	if f.Description != "" {
		spec["Desc"] = encodeText(f.Description)
	}
	e.fileSpec, err = e.ctx.IndRefForNewObject(spec)
	if err != nil {
		return model.NewPdfStructureError("embed", "cannot add file specification", err)
	}

	if err := e.associate(f.Name); err != nil {
		return err
	}
	return e.nameTree(f.Name)
}

// associate appends the file specification to /AF, dropping any earlier
// specification for the same file name.
func (e *embedder) associate(name string) error {
	existing, err := e.ctx.DereferenceArray(e.catalog["AF"])
	if err != nil {
		return model.NewPdfStructureError("embed", "unreadable /AF array", err)
	}
	af := types.Array{}
	for _, entry := range existing {
		if n, ok := fileSpecName(e.ctx, entry); ok && n == name {
			continue
		}
		af = append(af, entry)
	}
	e.catalog["AF"] = append(af, *e.fileSpec)
	return nil
}

// nameTree rebuilds /Names /EmbeddedFiles as a single sorted leaf holding
// every existing entry plus the new one.
func (e *embedder) nameTree(name string) error {
	names, err := e.ctx.DereferenceDict(e.catalog["Names"])
	if err != nil {
		return model.NewPdfStructureError("embed", "unreadable /Names dictionary", err)
	}
	if names == nil {
		names = types.Dict{}
		e.catalog["Names"] = names
	}

	entries, err := flattenNameTree(e.ctx, names["EmbeddedFiles"], 0)
	if err != nil {
		return model.NewPdfStructureError("embed", "unreadable /EmbeddedFiles name tree", err)
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.name != name {
			kept = append(kept, entry)
		}
	}
	kept = append(kept, nameEntry{name: name, value: *e.fileSpec})
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].name < kept[j].name })

	leaf := types.Array{}
	for _, entry := range kept {
		leaf = append(leaf, encodeText(entry.name), entry.value)
	}
	names["EmbeddedFiles"] = types.Dict{"Names": leaf}
	return nil
}

// metadata replaces the catalog's XMP stream with the merged packet. The
// new stream is unfiltered so validators can read it directly.
func (e *embedder) metadata(f xmpFields) error {
	var existing []byte
	if ref, ok := e.catalog["Metadata"]; ok {
		content, err := streamContent(e.ctx, ref)
		if err != nil {
			return model.NewPdfStructureError("embed", "unreadable metadata stream", err)
		}
		existing = content
	}

	packet, err := mergeXMP(existing, f)
	if err != nil {
		return model.NewPdfStructureError("embed", "cannot write XMP metadata", err)
	}
	stream := newStream(types.Dict{
		"Type":    types.Name("Metadata"),
		"Subtype": types.Name("XML"),
	}, packet)

	if ref, ok := e.catalog["Metadata"].(types.IndirectRef); ok {
		if entry, found := e.ctx.Table[ref.ObjectNumber.Value()]; found && entry != nil {
			entry.Object = stream
			return nil
		}
	}
	ref, err := e.ctx.IndRefForNewObject(stream)
	if err != nil {
		return model.NewPdfStructureError("embed", "cannot add metadata stream", err)
	}
	e.catalog["Metadata"] = *ref
	return nil
}

// version raises the document to PDF 1.7, the base of PDF/A-3
func (e *embedder) version() error {
	if documentVersion(e.ctx, e.catalog) >= pdfmodel.V17 {
		return nil
	}
	v := pdfmodel.V17
	e.ctx.RootVersion = &v
	e.catalog["Version"] = types.Name(v.String())
	return nil
}

func newStream(d types.Dict, content []byte) types.StreamDict {
	n := int64(len(content))
	d["Length"] = types.Integer(n)
	return types.StreamDict{
		Dict:         d,
		Content:      content,
		Raw:          content,
		StreamLength: &n,
	}
}
