package facturx

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/facturx/internal/processor"
)

// Options configures a Compiler
type Options struct {
	// Producer is recorded in the XMP metadata of produced PDFs
	Producer string
	// Logger receives per-stage debug logs; nil disables logging
	Logger *zap.Logger
	// Renderer and Rasterizer are required by BuildPDF only
	Renderer   Renderer
	Rasterizer Rasterizer
	// Clock supplies attachment modification dates; nil means time.Now
	Clock func() time.Time
}

// DefaultOptions returns the default compiler options
func DefaultOptions() Options {
	return Options{Producer: "facturx"}
}

// Compiler implements the hybrid invoice operations over the internal
// pipeline. It is safe for concurrent use.
type Compiler struct {
	pipeline *processor.Pipeline
}

// NewCompiler creates a compiler with the given options
func NewCompiler(opts Options) *Compiler {
	popts := []processor.Option{
		processor.WithLogger(opts.Logger),
		processor.WithProducer(opts.Producer),
	}
	if opts.Renderer != nil {
		popts = append(popts, processor.WithRenderer(opts.Renderer))
	}
	if opts.Rasterizer != nil {
		popts = append(popts, processor.WithRasterizer(opts.Rasterizer))
	}
	if opts.Clock != nil {
		popts = append(popts, processor.WithClock(opts.Clock))
	}

	return &Compiler{pipeline: processor.NewPipeline(popts...)}
}

// New creates a compiler with default options
func New() *Compiler {
	return NewCompiler(DefaultOptions())
}

// Profiles returns every supported profile, smallest first
func (c *Compiler) Profiles() []*Profile {
	return c.pipeline.Profiles().List()
}

// Profile resolves a profile by identifier or display name
func (c *Compiler) Profile(id string) (*Profile, error) {
	return c.pipeline.Profiles().Get(id)
}

// Compile validates data against the named profile. Validation failures
// are returned as ValidationErrors listing every problem found.
func (c *Compiler) Compile(profileID string, data any) (*Document, error) {
	return c.pipeline.Compile(profileID, data)
}

// CompileBytes decodes JSON or YAML invoice data and compiles it
func (c *Compiler) CompileBytes(profileID string, data []byte) (*Document, error) {
	decoded, err := processor.DecodeInput(data)
	if err != nil {
		return nil, err
	}
	return c.pipeline.Compile(profileID, decoded)
}

// ToXMLBytes serializes the document as CII XML
func (c *Compiler) ToXMLBytes(doc *Document) ([]byte, error) {
	return c.pipeline.ToXMLBytes(doc)
}

// EmbedInPDF returns a PDF/A-3 copy of pdf with the document's XML attached.
// pdf itself is never modified.
func (c *Compiler) EmbedInPDF(doc *Document, pdf []byte) ([]byte, error) {
	return c.pipeline.EmbedInPDF(doc, pdf)
}

// BuildPDF renders, rasterizes and embeds in one step
func (c *Compiler) BuildPDF(ctx context.Context, doc *Document, templateKey string) ([]byte, error) {
	return c.pipeline.BuildPDF(ctx, doc, templateKey)
}

// ListEmbeddedFiles returns the files attached to pdf
func (c *Compiler) ListEmbeddedFiles(pdf []byte) ([]EmbeddedFile, error) {
	return c.pipeline.ListEmbeddedFiles(pdf)
}

// Metadata returns the PDF/A and Factur-X XMP identification of pdf, or nil
// when it carries no metadata
func (c *Compiler) Metadata(pdf []byte) (*XMPInfo, error) {
	return c.pipeline.Metadata(pdf)
}

// Inspect summarises an invoice XML or the invoice XML embedded in a PDF
func (c *Compiler) Inspect(ctx context.Context, data []byte) (*Summary, error) {
	return c.pipeline.Inspect(ctx, data)
}

// BatchItem is one invoice of a batch
type BatchItem struct {
	Profile string
	Data    any
	// PDF, when set, receives the XML; otherwise only XML is produced
	PDF []byte
}

// BatchResult is the outcome for the BatchItem at the same index
type BatchResult struct {
	XML []byte
	PDF []byte
	Err error
}

// CompileBatch compiles items concurrently. Results keep the order of
// items; the returned error is the first failure encountered, if any.
func (c *Compiler) CompileBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	errCh := make(chan error, len(items))

	for i, item := range items {
		go func(idx int, item BatchItem) {
			res := c.compileItem(ctx, item)
			results[idx] = res
			errCh <- res.Err
		}(i, item)
	}

	// Wait for all goroutines
	var firstErr error
	for range items {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

func (c *Compiler) compileItem(ctx context.Context, item BatchItem) BatchResult {
	if err := ctx.Err(); err != nil {
		return BatchResult{Err: err}
	}

	doc, err := c.pipeline.Compile(item.Profile, item.Data)
	if err != nil {
		return BatchResult{Err: err}
	}
	xml, err := c.pipeline.ToXMLBytes(doc)
	if err != nil {
		return BatchResult{Err: err}
	}
	if item.PDF == nil {
		return BatchResult{XML: xml}
	}
	pdf, err := c.pipeline.EmbedInPDF(doc, item.PDF)
	if err != nil {
		return BatchResult{XML: xml, Err: err}
	}
	return BatchResult{XML: xml, PDF: pdf}
}
