package entity

import (
	"strings"
	"time"
)

// Attachment is one uploaded receipt or invoice file owned by a single expense
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MediaType  string    `json:"type"`
	StorageRef string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`

	// Extraction bookkeeping for this file
	AbbyySentAt         *time.Time `json:"abbyySentAt,omitempty"`
	AbbyyProcessedAt    *time.Time `json:"abbyyProcessedAt,omitempty"`
	ExtractionRequestID string     `json:"extractionRequestId,omitempty"`
	ExtractionError     string     `json:"extractionError,omitempty"`
}

// IsExtractable returns true for PDFs and images, the only media types sent for extraction
func (a *Attachment) IsExtractable() bool {
	mt := strings.ToLower(a.MediaType)
	return strings.Contains(mt, "pdf") || strings.HasPrefix(mt, "image/")
}

// InFlight returns true when an extraction request was sent and its result has not arrived yet
func (a *Attachment) InFlight() bool {
	if a.AbbyySentAt == nil {
		return false
	}
	return a.AbbyyProcessedAt == nil || a.AbbyyProcessedAt.Before(*a.AbbyySentAt)
}

// AttachmentUpload carries a new file before it is stored
type AttachmentUpload struct {
	Name      string
	MediaType string
	Content   []byte
}
