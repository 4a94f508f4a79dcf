// Package processor orchestrates the hybrid invoice pipeline: caller data is
// validated against a profile, projected into CII XML and embedded into a
// PDF/A-3 document.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/facturx/internal/model"
	xmlparser "github.com/rezonia/facturx/internal/parser/xml"
	"github.com/rezonia/facturx/internal/pdfa"
	"github.com/rezonia/facturx/internal/profile"
	"github.com/rezonia/facturx/internal/projection"
	"github.com/rezonia/facturx/internal/render"
	"github.com/rezonia/facturx/internal/schema"
	"github.com/rezonia/facturx/internal/validate"
	"github.com/rezonia/facturx/internal/xmlout"
)

// ErrNoInvoiceXML is returned when a PDF carries no recognisable invoice XML
var ErrNoInvoiceXML = errors.New("no invoice XML embedded in PDF")

// invoiceFileNames are the attachment names used by hybrid formats, in
// order of preference
var invoiceFileNames = []string{
	profile.AttachmentFileName,
	"zugferd-invoice.xml",
	"ZUGFeRD-invoice.xml",
	"xrechnung.xml",
}

// Document is validated invoice data bound to the profile it was checked
// against. It is immutable once compiled.
type Document struct {
	Profile *schema.Profile
	Data    validate.Tree
}

// ProfileID returns the identifier of the document's profile
func (d *Document) ProfileID() string {
	if d == nil || d.Profile == nil {
		return ""
	}
	return d.Profile.ID
}

// Pipeline orchestrates the compilation stages
type Pipeline struct {
	profiles   *profile.Registry
	reader     *xmlparser.Registry
	renderer   render.Renderer
	rasterizer render.Rasterizer
	logger     *zap.Logger
	producer   string
	clock      func() time.Time
}

// Option configures Pipeline
type Option func(*Pipeline)

// WithProfiles sets the profile registry
func WithProfiles(r *profile.Registry) Option {
	return func(p *Pipeline) {
		p.profiles = r
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRenderer sets the template renderer used by BuildPDF
func WithRenderer(r render.Renderer) Option {
	return func(p *Pipeline) {
		p.renderer = r
	}
}

// WithRasterizer sets the HTML to PDF converter used by BuildPDF
func WithRasterizer(r render.Rasterizer) Option {
	return func(p *Pipeline) {
		p.rasterizer = r
	}
}

// WithProducer sets the producer recorded in embedded PDFs
func WithProducer(producer string) Option {
	return func(p *Pipeline) {
		p.producer = producer
	}
}

// WithClock sets the time source for attachment dates
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = now
	}
}

// NewPipeline creates a new processing pipeline. Without WithProfiles the
// built-in registry is loaded, panicking if a profile fails to compile.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.profiles == nil {
		p.profiles = profile.MustLoad()
	}
	p.reader = xmlparser.NewRegistry(p.profiles)
	return p
}

// Profiles returns the registry the pipeline resolves profiles from
func (p *Pipeline) Profiles() *profile.Registry {
	return p.profiles
}

// Compile validates data against the named profile
func (p *Pipeline) Compile(profileID string, data any) (*Document, error) {
	start := time.Now()
	prof, err := p.profiles.Get(profileID)
	if err != nil {
		return nil, err
	}

	tree, err := validate.Validate(prof, data)
	if err != nil {
		if list, ok := model.AsValidationErrors(err); ok {
			p.logger.Debug("validation failed",
				zap.String("profile", prof.ID),
				zap.Int("errors", len(list)),
				zap.Duration("duration", time.Since(start)))
		}
		return nil, err
	}

	p.logger.Debug("validated invoice data",
		zap.String("profile", prof.ID),
		zap.Duration("duration", time.Since(start)))
	return &Document{Profile: prof, Data: tree}, nil
}

// ToXMLBytes projects and serializes the document. The output is
// byte-identical for the same document.
func (p *Pipeline) ToXMLBytes(doc *Document, opts ...xmlout.Option) ([]byte, error) {
	if doc == nil || doc.Profile == nil {
		return nil, fmt.Errorf("processor: no document")
	}
	start := time.Now()

	tree, err := projection.Project(doc.Profile, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("projection failed: %w", err)
	}
	out, err := xmlout.Serialize(tree, opts...)
	if err != nil {
		return nil, fmt.Errorf("serialization failed: %w", err)
	}

	p.logger.Debug("serialized invoice XML",
		zap.String("profile", doc.Profile.ID),
		zap.Int("bytes", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// EmbedInPDF returns a PDF/A-3 copy of pdf carrying the document's XML
func (p *Pipeline) EmbedInPDF(doc *Document, pdf []byte) ([]byte, error) {
	xml, err := p.ToXMLBytes(doc)
	if err != nil {
		return nil, err
	}
	return p.embed(doc.Profile, xml, pdf)
}

func (p *Pipeline) embed(prof *schema.Profile, xml, pdf []byte) ([]byte, error) {
	start := time.Now()
	opts := []pdfa.Option{pdfa.WithClock(p.clock)}
	if p.producer != "" {
		opts = append(opts, pdfa.WithProducer(p.producer))
	}

	out, err := pdfa.Embed(pdf, xml, prof, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("embedded invoice XML",
		zap.String("profile", prof.ID),
		zap.Int("inputBytes", len(pdf)),
		zap.Int("outputBytes", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// ListEmbeddedFiles returns the files attached to pdf
func (p *Pipeline) ListEmbeddedFiles(pdf []byte) ([]model.EmbeddedFile, error) {
	return pdfa.ListEmbeddedFiles(pdf)
}

// Metadata returns the PDF/A identification of pdf
func (p *Pipeline) Metadata(pdf []byte) (*pdfa.XMPInfo, error) {
	return pdfa.Metadata(pdf)
}

// BuildPDF renders the document with the template named templateKey,
// rasterizes the markup and embeds the XML into the result.
func (p *Pipeline) BuildPDF(ctx context.Context, doc *Document, templateKey string) ([]byte, error) {
	if p.renderer == nil {
		return nil, fmt.Errorf("%w: renderer", render.ErrNotConfigured)
	}
	if p.rasterizer == nil {
		return nil, fmt.Errorf("%w: rasterizer", render.ErrNotConfigured)
	}
	if doc == nil || doc.Profile == nil {
		return nil, fmt.Errorf("processor: no document")
	}

	xml, err := p.ToXMLBytes(doc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	markup, err := p.renderer.Render(ctx, templateKey, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("rendering failed: %w", err)
	}
	pdf, err := p.rasterizer.Rasterize(ctx, markup)
	if err != nil {
		return nil, fmt.Errorf("rasterizing failed: %w", err)
	}
	p.logger.Debug("rendered invoice",
		zap.String("template", templateKey),
		zap.Int("markupBytes", len(markup)),
		zap.Int("pdfBytes", len(pdf)),
		zap.Duration("duration", time.Since(start)))

	return p.embed(doc.Profile, xml, pdf)
}

// Inspect summarises an invoice XML, or the invoice XML embedded in a PDF
func (p *Pipeline) Inspect(ctx context.Context, data []byte) (*xmlparser.Summary, error) {
	switch DetectFormat(data) {
	case FormatPDF:
		files, err := pdfa.ListEmbeddedFiles(data)
		if err != nil {
			return nil, err
		}
		xml, ok := invoiceAttachment(files)
		if !ok {
			return nil, ErrNoInvoiceXML
		}
		return p.reader.Parse(ctx, xml)
	case FormatXML:
		return p.reader.Parse(ctx, data)
	default:
		return nil, model.NewParseError(model.SyntaxUnknown, "content", "expected XML or PDF input", nil)
	}
}

func invoiceAttachment(files []model.EmbeddedFile) ([]byte, bool) {
	for _, name := range invoiceFileNames {
		for _, f := range files {
			if strings.EqualFold(f.Name, name) {
				return f.Data, true
			}
		}
	}
	return nil, false
}

// DecodeInput parses JSON or YAML invoice data into a nested map. JSON
// numbers are kept as text so amounts lose no precision.
func DecodeInput(data []byte) (map[string]any, error) {
	var out map[string]any
	switch DetectFormat(data) {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decoding JSON input: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decoding YAML input: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported input format %s, expected JSON or YAML", DetectFormat(data))
	}
	if out == nil {
		return nil, fmt.Errorf("input is not an object")
	}
	return out, nil
}
