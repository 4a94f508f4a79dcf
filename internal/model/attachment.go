package model

import "time"

// Relationship is the AFRelationship of an associated file
type Relationship string

const (
	RelationshipAlternative Relationship = "Alternative"
	RelationshipData        Relationship = "Data"
	RelationshipSource      Relationship = "Source"
	RelationshipSupplement  Relationship = "Supplement"
	RelationshipUnspecified Relationship = "Unspecified"
)

// MimeTypeXML is the media type of the embedded invoice
const MimeTypeXML = "application/xml"

// EmbeddedFile is a file attached to a PDF document
type EmbeddedFile struct {
	Name         string       `json:"name"`
	MimeType     string       `json:"mime_type,omitempty"`
	Description  string       `json:"description,omitempty"`
	Relationship Relationship `json:"relationship,omitempty"`
	ModDate      time.Time    `json:"mod_date,omitempty"`
	Data         []byte       `json:"data,omitempty"`
}

// Size returns the length of the decoded file content
func (f *EmbeddedFile) Size() int {
	return len(f.Data)
}
