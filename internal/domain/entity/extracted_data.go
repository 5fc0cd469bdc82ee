package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtractedData holds the fields the extraction service read from a receipt.
// Every field except ExtractedAt may be missing when the service could not read it.
type ExtractedData struct {
	AttachmentID  string           `json:"attachmentId,omitempty"`
	Vendor        string           `json:"vendor,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Date          string           `json:"date,omitempty"`
	InvoiceNumber string           `json:"invoiceNumber,omitempty"`
	Category      string           `json:"category,omitempty"`
	Confidence    *float64         `json:"confidence,omitempty"`
	ExtractedAt   time.Time        `json:"extractedAt"`
}

// Clone returns a deep copy
func (d *ExtractedData) Clone() *ExtractedData {
	c := *d
	if d.Amount != nil {
		a := *d.Amount
		c.Amount = &a
	}
	if d.Confidence != nil {
		v := *d.Confidence
		c.Confidence = &v
	}
	return &c
}

// ExtractionRequest is what gets dispatched to the extraction service for one attachment
type ExtractionRequest struct {
	ExpenseID    string `json:"expenseId"`
	AttachmentID string `json:"attachmentId"`
	RequestID    string `json:"requestId"`
	FileRef      string `json:"fileUrl"`
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
}

// ExtractionResult is the completion for one extraction request, success or failure
type ExtractionResult struct {
	ExpenseID    string         `json:"expenseId"`
	AttachmentID string         `json:"attachmentId"`
	RequestID    string         `json:"requestId,omitempty"`
	Success      bool           `json:"success"`
	Data         *ExtractedData `json:"extractedData,omitempty"`
	Error        string         `json:"error,omitempty"`
}
