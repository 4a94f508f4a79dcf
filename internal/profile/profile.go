// Package profile holds the Factur-X profile schemas, from MINIMUM up to
// EXTENDED, and the registry they are looked up in.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/schema"
)

// Profile identifiers
const (
	Minimum  = "minimum"
	BasicWL  = "basicwl"
	Basic    = "basic"
	EN16931  = "en16931"
	Extended = "extended"
)

// AttachmentFileName is the name every Factur-X profile embeds its XML under
const AttachmentFileName = "factur-x.xml"

// ErrUnknownProfile is returned when a profile name or guideline identifier
// does not resolve
var ErrUnknownProfile = errors.New("unknown profile")

var namespaces = []schema.Namespace{
	{Prefix: "rsm", URI: "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"},
	{Prefix: "qdt", URI: "urn:un:unece:uncefact:data:standard:QualifiedDataType:100"},
	{Prefix: "ram", URI: "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"},
	{Prefix: "xs", URI: "http://www.w3.org/2001/XMLSchema"},
	{Prefix: "udt", URI: "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"},
}

type header struct {
	id          string
	name        string
	conformance string
	guideline   string
}

var headers = map[level]header{
	minimum:  {Minimum, "MINIMUM", "MINIMUM", "urn:factur-x.eu:1p0:minimum"},
	basicWL:  {BasicWL, "BASIC WL", "BASIC WL", "urn:factur-x.eu:1p0:basicwl"},
	basic:    {Basic, "BASIC", "BASIC", "urn:cen.eu:en16931:2017#compliant#urn:factur-x.eu:1p0:basic"},
	en16931:  {EN16931, "EN 16931", "EN 16931", "urn:cen.eu:en16931:2017"},
	extended: {Extended, "EXTENDED", "EXTENDED", "urn:cen.eu:en16931:2017#conformant#urn:factur-x.eu:1p0:extended"},
}

// aliases maps normalized alternative names to profile identifiers
var aliases = map[string]string{
	"comfort": EN16931,
	"en":      EN16931,
}

// Definitions returns fresh, uncompiled definitions of every profile, from
// the smallest to the largest.
func Definitions() []*schema.Profile {
	out := make([]*schema.Profile, 0, len(headers))
	for l := minimum; l <= extended; l++ {
		out = append(out, define(l))
	}
	return out
}

func define(l level) *schema.Profile {
	h := headers[l]
	return &schema.Profile{
		ID:                 h.id,
		Name:               h.name,
		ConformanceLevel:   h.conformance,
		SpecificationID:    h.guideline,
		AttachmentFileName: AttachmentFileName,
		DocumentType:       "INVOICE",
		Version:            "1.0",
		RootElement:        "rsm:CrossIndustryInvoice",
		Namespaces:         namespaces,
		Root:               builder{level: l, guideline: h.guideline}.invoice(),
	}
}

// Registry resolves compiled profiles by identifier or guideline identifier
type Registry struct {
	profiles []*schema.Profile
	byID     map[string]*schema.Profile
}

// New compiles every profile against the given code lists
func New(codes *codelist.Registry) (*Registry, error) {
	r := &Registry{byID: make(map[string]*schema.Profile)}
	for _, def := range Definitions() {
		if err := r.Register(def, codes); err != nil {
			return nil, err
		}
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the process-wide registry, compiled on first use
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		codes, err := codelist.Default()
		if err != nil {
			defaultErr = err
			return
		}
		defaultRegistry, defaultErr = New(codes)
	})
	return defaultRegistry, defaultErr
}

// MustLoad returns the default registry and panics when a profile fails to
// compile. Meant for process start.
func MustLoad() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Register compiles def and adds it to the registry. A profile with the
// same identifier is replaced.
func (r *Registry) Register(def *schema.Profile, codes *codelist.Registry) error {
	p, err := schema.Compile(def, codes)
	if err != nil {
		return err
	}
	key := normalize(p.ID)
	if old, ok := r.byID[key]; ok {
		for i, existing := range r.profiles {
			if existing == old {
				r.profiles[i] = p
			}
		}
	} else {
		r.profiles = append(r.profiles, p)
	}
	r.byID[key] = p
	return nil
}

// Get returns the profile with the given identifier. Case, spaces, dashes
// and underscores are ignored, so "EN 16931" and "en16931" are the same.
func (r *Registry) Get(id string) (*schema.Profile, error) {
	p, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	return p, nil
}

// List returns the registered profiles in registration order
func (r *Registry) List() []*schema.Profile {
	out := make([]*schema.Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Detect finds the profile whose specification identifier matches the
// guideline identifier of an existing document.
func (r *Registry) Detect(guideline string) (*schema.Profile, error) {
	guideline = strings.TrimSpace(guideline)
	for _, p := range r.profiles {
		if p.SpecificationID == guideline {
			return p, nil
		}
	}
	// ZUGFeRD identifiers end in the profile name; other CIUS
	// identifiers such as XRechnung extend the EN 16931 one.
	last := guideline[strings.LastIndex(guideline, ":")+1:]
	if p, ok := r.lookup(last); ok && strings.HasPrefix(guideline, "urn:") {
		return p, nil
	}
	if strings.HasPrefix(guideline, headers[en16931].guideline+"#") {
		if p, ok := r.byID[EN16931]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: guideline %q", ErrUnknownProfile, guideline)
}

func (r *Registry) lookup(id string) (*schema.Profile, bool) {
	key := normalize(id)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	p, ok := r.byID[key]
	return p, ok
}

func normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(id)
}
