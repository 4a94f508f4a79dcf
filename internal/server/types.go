package server

import (
	"time"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/pdfa"
	"github.com/rezonia/facturx/internal/schema"
)

// ProfileInfo describes one supported profile
type ProfileInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ConformanceLevel   string `json:"conformance_level"`
	SpecificationID    string `json:"specification_id"`
	AttachmentFileName string `json:"attachment_file_name"`
}

func newProfileInfo(p *schema.Profile) ProfileInfo {
	return ProfileInfo{
		ID:                 p.ID,
		Name:               p.Name,
		ConformanceLevel:   p.ConformanceLevel,
		SpecificationID:    p.SpecificationID,
		AttachmentFileName: p.AttachmentFileName,
	}
}

// ProfilesResponse is the response for the profile listing endpoint
type ProfilesResponse struct {
	Profiles []ProfileInfo `json:"profiles"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid   bool                   `json:"valid"`
	Profile string                 `json:"profile"`
	Errors  model.ValidationErrors `json:"errors,omitempty"`
}

// AttachmentOutput describes one embedded file. Data is base64 encoded.
type AttachmentOutput struct {
	Name         string             `json:"name"`
	MimeType     string             `json:"mime_type,omitempty"`
	Description  string             `json:"description,omitempty"`
	Relationship model.Relationship `json:"relationship,omitempty"`
	ModDate      *time.Time         `json:"mod_date,omitempty"`
	Size         int                `json:"size"`
	Data         []byte             `json:"data,omitempty"`
}

func newAttachmentOutput(f model.EmbeddedFile, withData bool) AttachmentOutput {
	out := AttachmentOutput{
		Name:         f.Name,
		MimeType:     f.MimeType,
		Description:  f.Description,
		Relationship: f.Relationship,
		Size:         f.Size(),
	}
	if !f.ModDate.IsZero() {
		mod := f.ModDate
		out.ModDate = &mod
	}
	if withData {
		out.Data = f.Data
	}
	return out
}

// AttachmentsResponse is the response for the attachments endpoint
type AttachmentsResponse struct {
	Files    []AttachmentOutput `json:"files"`
	Metadata *pdfa.XMPInfo      `json:"metadata,omitempty"`
	Version  string             `json:"version,omitempty"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
