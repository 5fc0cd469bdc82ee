package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Expense is a single spend record moving through approval and extraction states
type Expense struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`

	SubmittedBy string     `json:"submittedBy"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`

	ApprovedBy string     `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`

	RejectedBy      string     `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`

	PaidAt           *time.Time `json:"paidAt,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`

	Attachments      []Attachment      `json:"attachments"`
	ExtractedData    *ExtractedData    `json:"extractedData,omitempty"`
	ProcessingStatus *ProcessingStatus `json:"processingStatus,omitempty"`

	// Version is bumped by the store on every successful update
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ExpenseDraft is the caller-supplied part of a new expense
type ExpenseDraft struct {
	Title       string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Date        time.Time
	Description string
	SubmittedBy string
}

// Attachment returns the attachment with the given id and its index, or -1 and nil
func (e *Expense) Attachment(id string) (int, *Attachment) {
	for i := range e.Attachments {
		if e.Attachments[i].ID == id {
			return i, &e.Attachments[i]
		}
	}
	return -1, nil
}

// ProcessingStatusOrEmpty returns the processing status, or "" when unset
func (e *Expense) ProcessingStatusOrEmpty() ProcessingStatus {
	if e.ProcessingStatus == nil {
		return ""
	}
	return *e.ProcessingStatus
}

// Clone returns a deep copy so callers never share mutable state with a store
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	c := *e
	c.SubmittedAt = cloneTime(e.SubmittedAt)
	c.ApprovedAt = cloneTime(e.ApprovedAt)
	c.RejectedAt = cloneTime(e.RejectedAt)
	c.PaidAt = cloneTime(e.PaidAt)

	if e.Attachments != nil {
		c.Attachments = make([]Attachment, len(e.Attachments))
		for i, att := range e.Attachments {
			att.AbbyySentAt = cloneTime(att.AbbyySentAt)
			att.AbbyyProcessedAt = cloneTime(att.AbbyyProcessedAt)
			c.Attachments[i] = att
		}
	}

	if e.ExtractedData != nil {
		c.ExtractedData = e.ExtractedData.Clone()
	}

	if e.ProcessingStatus != nil {
		ps := *e.ProcessingStatus
		c.ProcessingStatus = &ps
	}

	return &c
}

// TruncateToDate drops the clock part of t, keeping its calendar date in UTC
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
