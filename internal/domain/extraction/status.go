// Package extraction derives the expense-level processing status from the
// extraction state of each attachment.
package extraction

import "github.com/garyjia/expense-flow/internal/domain/entity"

// AttachmentState is the extraction state of a single attachment
type AttachmentState string

const (
	StateNotSent    AttachmentState = "not-sent"
	StateExtracting AttachmentState = "extracting"
	StateCompleted  AttachmentState = "completed"
	StateFailed     AttachmentState = "failed"
)

// StateOf derives the extraction state of one attachment from its timestamps.
// A processed stamp older than the sent stamp belongs to an earlier request.
func StateOf(att entity.Attachment) AttachmentState {
	switch {
	case att.AbbyySentAt == nil:
		return StateNotSent
	case att.InFlight():
		return StateExtracting
	case att.ExtractionError != "":
		return StateFailed
	default:
		return StateCompleted
	}
}

// Aggregate folds per-attachment states into the expense-level status.
// Priority is failed > extracting > pending > completed. It returns nil for no states.
func Aggregate(states []AttachmentState) *entity.ProcessingStatus {
	if len(states) == 0 {
		return nil
	}

	var failed, extracting, notSent bool
	for _, s := range states {
		switch s {
		case StateFailed:
			failed = true
		case StateExtracting:
			extracting = true
		case StateNotSent:
			notSent = true
		}
	}

	result := entity.ProcessingCompleted
	switch {
	case failed:
		result = entity.ProcessingFailed
	case extracting:
		result = entity.ProcessingExtracting
	case notSent:
		result = entity.ProcessingPending
	}
	return &result
}

// DeriveProcessingStatus computes the processing status for a list of attachments
func DeriveProcessingStatus(attachments []entity.Attachment) *entity.ProcessingStatus {
	states := make([]AttachmentState, 0, len(attachments))
	for _, att := range attachments {
		states = append(states, StateOf(att))
	}
	return Aggregate(states)
}

// Recompute overwrites expense.ProcessingStatus from its attachments.
// It is the only writer of that field.
func Recompute(expense *entity.Expense) {
	expense.ProcessingStatus = DeriveProcessingStatus(expense.Attachments)
}

// Summary counts expenses per processing status
type Summary struct {
	Counts map[entity.ProcessingStatus]int `json:"counts"`
	Total  int                             `json:"total"`
}

// Summarize counts processing statuses over expenses that have attachments or
// a processing status. Expenses without attachments but with a stale status are
// counted under that status.
func Summarize(expenses []*entity.Expense) Summary {
	counts := make(map[entity.ProcessingStatus]int, len(entity.AllProcessingStatuses))
	for _, ps := range entity.AllProcessingStatuses {
		counts[ps] = 0
	}

	total := 0
	for _, e := range expenses {
		if len(e.Attachments) == 0 && e.ProcessingStatus == nil {
			continue
		}
		total++
		if e.ProcessingStatus == nil {
			// attachments present but never recomputed: pending
			counts[entity.ProcessingPending]++
			continue
		}
		counts[*e.ProcessingStatus]++
	}

	return Summary{Counts: counts, Total: total}
}
