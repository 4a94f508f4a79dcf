// Package facturx provides a public API for producing and reading
// Factur-X / ZUGFeRD hybrid invoices.
//
// Invoice data is validated against a profile, projected into Cross
// Industry Invoice XML and embedded into a PDF/A-3 document.
//
// Example usage:
//
//	c := facturx.New()
//	doc, err := c.Compile(facturx.EN16931, data)
//	if err != nil {
//	    if list, ok := facturx.AsValidationErrors(err); ok {
//	        for _, e := range list {
//	            fmt.Println(e.Path, e.Code)
//	        }
//	    }
//	    log.Fatal(err)
//	}
//	hybrid, err := c.EmbedInPDF(doc, visualPDF)
package facturx

import (
	"github.com/rezonia/facturx/internal/model"
	xmlparser "github.com/rezonia/facturx/internal/parser/xml"
	"github.com/rezonia/facturx/internal/pdfa"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/profile"
	"github.com/rezonia/facturx/internal/render"
	"github.com/rezonia/facturx/internal/schema"
)

// Re-export core types for public API
type (
	Document     = processor.Document
	Profile      = schema.Profile
	EmbeddedFile = model.EmbeddedFile
	Relationship = model.Relationship
	XMPInfo      = pdfa.XMPInfo
	Summary      = xmlparser.Summary
	Party        = xmlparser.Party
	Format       = processor.Format
	Renderer     = render.Renderer
	Rasterizer   = render.Rasterizer
)

// Re-export profile identifiers
const (
	Minimum  = profile.Minimum
	BasicWL  = profile.BasicWL
	Basic    = profile.Basic
	EN16931  = profile.EN16931
	Extended = profile.Extended
)

// Re-export input formats
const (
	FormatUnknown = processor.FormatUnknown
	FormatJSON    = processor.FormatJSON
	FormatYAML    = processor.FormatYAML
	FormatXML     = processor.FormatXML
	FormatPDF     = processor.FormatPDF
)

// Re-export error types
type (
	ValidationError      = model.ValidationError
	ValidationErrors     = model.ValidationErrors
	ErrorCode            = model.ErrorCode
	PdfStructureError    = model.PdfStructureError
	ParseError           = model.ParseError
	ProjectionError      = model.ProjectionError
	MalformedSchemaError = model.MalformedSchemaError
)

// Re-export error codes
const (
	ErrCodeMissingRequiredField = model.ErrCodeMissingRequiredField
	ErrCodeInvalidNumber        = model.ErrCodeInvalidNumber
	ErrCodeInvalidDate          = model.ErrCodeInvalidDate
	ErrCodeInvalidEnumValue     = model.ErrCodeInvalidEnumValue
	ErrCodeConstraintViolation  = model.ErrCodeConstraintViolation
	ErrCodeInvalidType          = model.ErrCodeInvalidType
)

// Re-export sentinel errors
var (
	ErrUnknownProfile = profile.ErrUnknownProfile
	ErrNotConfigured  = render.ErrNotConfigured
	ErrNoInvoiceXML   = processor.ErrNoInvoiceXML
)

// AsValidationErrors extracts the full list of data problems from err
func AsValidationErrors(err error) (ValidationErrors, bool) {
	return model.AsValidationErrors(err)
}

// DetectFormat identifies input from its leading bytes
func DetectFormat(data []byte) Format {
	return processor.DetectFormat(data)
}

// DecodeInput parses JSON or YAML invoice data
func DecodeInput(data []byte) (map[string]any, error) {
	return processor.DecodeInput(data)
}
