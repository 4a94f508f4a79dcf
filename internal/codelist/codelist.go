// Package codelist serves the read-only reference code sets that enum fields
// are validated against.
package codelist

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Well-known code set names
const (
	Currency         = "ISO4217"
	Country          = "ISO3166"
	DocumentType     = "UNTDID1001"
	ReferenceType    = "UNTDID1153"
	DateFunction     = "UNTDID2005"
	TextSubject      = "UNTDID4451"
	PaymentMeans     = "UNTDID4461"
	AllowanceReason  = "UNTDID5189"
	VATCategory      = "UNTDID5305"
	ItemType         = "UNTDID7143"
	ChargeReason     = "UNTDID7161"
	UnitOfMeasure    = "UNECERec20"
	ElectronicScheme = "EAS"
	Identifier       = "ICD"
	VATExemption     = "VATEX"
	DeliveryTerms    = "INCOTERMS"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Set is a named, immutable collection of codes
type Set interface {
	Name() string
	Contains(code string) bool
}

// Registry resolves code sets by name
type Registry struct {
	sets map[string]Set
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]Set)}
}

// Register adds or replaces a code set
func (r *Registry) Register(s Set) {
	r.sets[s.Name()] = s
}

// Get returns the code set with the given name
func (r *Registry) Get(name string) (Set, bool) {
	s, ok := r.sets[name]
	return s, ok
}

// Names returns all registered set names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sets))
	for n := range r.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the process-wide registry, loading it on first use
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load()
	})
	return defaultRegistry, defaultErr
}

// Load builds a registry from the embedded tables plus the currency and
// country sets backed by golang.org/x/text.
func Load() (*Registry, error) {
	r := NewRegistry()
	r.Register(currencySet{})
	r.Register(countrySet{})

	files, err := dataFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to read code list data: %w", err)
	}
	for _, f := range files {
		raw, err := dataFS.ReadFile("data/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
		}
		sets, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name(), err)
		}
		for _, s := range sets {
			r.Register(s)
		}
	}
	return r, nil
}

type tableDoc struct {
	Description string   `yaml:"description"`
	Codes       []string `yaml:"codes"`
}

// Parse reads code sets from a YAML document keyed by set name
func Parse(raw []byte) ([]Set, error) {
	var doc map[string]tableDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc))
	for n := range doc {
		names = append(names, n)
	}
	sort.Strings(names)

	sets := make([]Set, 0, len(doc))
	for _, n := range names {
		t := doc[n]
		if len(t.Codes) == 0 {
			return nil, fmt.Errorf("code list %s is empty", n)
		}
		sets = append(sets, NewTable(n, t.Description, t.Codes...))
	}
	return sets, nil
}

// Table is a code set backed by an explicit list
type Table struct {
	name        string
	description string
	codes       map[string]struct{}
}

// NewTable creates a table code set
func NewTable(name, description string, codes ...string) *Table {
	t := &Table{
		name:        name,
		description: description,
		codes:       make(map[string]struct{}, len(codes)),
	}
	for _, c := range codes {
		t.codes[c] = struct{}{}
	}
	return t
}

func (t *Table) Name() string { return t.name }

// Description returns the human readable purpose of the list
func (t *Table) Description() string { return t.description }

func (t *Table) Contains(code string) bool {
	_, ok := t.codes[code]
	return ok
}

// Len returns the number of codes
func (t *Table) Len() int { return len(t.codes) }

// currencySet accepts upper-case ISO 4217 alphabetic codes
type currencySet struct{}

func (currencySet) Name() string { return Currency }

func (currencySet) Contains(code string) bool {
	if len(code) != 3 || strings.ToUpper(code) != code {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// countrySet accepts upper-case ISO 3166-1 alpha-2 country codes
type countrySet struct{}

func (countrySet) Name() string { return Country }

func (countrySet) Contains(code string) bool {
	if len(code) != 2 || strings.ToUpper(code) != code {
		return false
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return false
	}
	return region.IsCountry() && region.String() == code
}
