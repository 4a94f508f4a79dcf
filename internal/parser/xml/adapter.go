// Package xml reads existing hybrid-invoice XML back into a short summary
// and works out which profile produced it.
package xml

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/schema"
)

// Party is the identification of a seller or buyer
type Party struct {
	Name    string `json:"name,omitempty"`
	VATID   string `json:"vatId,omitempty"`
	Country string `json:"country,omitempty"`
}

// Summary is the header information of an invoice document
type Summary struct {
	Syntax        model.Syntax    `json:"syntax"`
	Guideline     string          `json:"guideline"`
	Process       string          `json:"businessProcess,omitempty"`
	Profile       string          `json:"profile,omitempty"`
	ProfileName   string          `json:"profileName,omitempty"`
	Number        string          `json:"number"`
	TypeCode      string          `json:"typeCode,omitempty"`
	IssueDate     time.Time       `json:"issueDate"`
	Currency      string          `json:"currency,omitempty"`
	Seller        Party           `json:"seller"`
	Buyer         Party           `json:"buyer"`
	LineCount     int             `json:"lineCount"`
	TaxBasisTotal decimal.Decimal `json:"taxBasisTotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	DuePayable    decimal.Decimal `json:"duePayable"`
}

// Adapter reads one XML vocabulary into a Summary
type Adapter interface {
	// Parse reads the document
	Parse(ctx context.Context, r io.Reader) (*Summary, error)

	// CanParse returns true if the adapter handles this content
	CanParse(content []byte) bool

	// Syntax returns the vocabulary the adapter reads
	Syntax() model.Syntax
}

// Detector resolves a guideline identifier to a profile
type Detector interface {
	Detect(guideline string) (*schema.Profile, error)
}

// Registry holds all registered adapters
type Registry struct {
	adapters []Adapter
	profiles Detector
}

// NewRegistry creates a registry with all adapters. profiles may be nil, in
// which case summaries carry no profile.
func NewRegistry(profiles Detector) *Registry {
	return &Registry{
		adapters: []Adapter{
			NewCIIAdapter(),
			NewZUGFeRD1Adapter(),
		},
		profiles: profiles,
	}
}

// Detect identifies the vocabulary of content
func (r *Registry) Detect(content []byte) (Adapter, error) {
	for _, a := range r.adapters {
		if a.CanParse(content) {
			return a, nil
		}
	}
	return nil, model.NewParseError(model.SyntaxUnknown, "root", "unknown XML format, no matching adapter found", nil)
}

// Parse reads content with the matching adapter and resolves its profile.
// A guideline no profile matches is not an error; Profile stays empty.
func (r *Registry) Parse(ctx context.Context, content []byte) (*Summary, error) {
	adapter, err := r.Detect(content)
	if err != nil {
		return nil, err
	}
	s, err := adapter.Parse(ctx, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if r.profiles != nil && s.Guideline != "" {
		if p, err := r.profiles.Detect(s.Guideline); err == nil {
			s.Profile = p.ID
			s.ProfileName = p.Name
		}
	}
	return s, nil
}

// RegisterAdapter adds a custom adapter to the registry
func (r *Registry) RegisterAdapter(a Adapter) {
	// Custom adapters take priority
	r.adapters = append([]Adapter{a}, r.adapters...)
}

// GetAdapter returns the adapter for a vocabulary
func (r *Registry) GetAdapter(syntax model.Syntax) Adapter {
	for _, a := range r.adapters {
		if a.Syntax() == syntax {
			return a
		}
	}
	return nil
}
