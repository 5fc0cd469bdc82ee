package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

var base = time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := base.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func notSent() entity.Attachment { return entity.Attachment{ID: "n"} }

func extracting() entity.Attachment { return entity.Attachment{ID: "e", AbbyySentAt: at(0)} }

func completed() entity.Attachment {
	return entity.Attachment{ID: "c", AbbyySentAt: at(0), AbbyyProcessedAt: at(1)}
}

func failed() entity.Attachment {
	return entity.Attachment{ID: "f", AbbyySentAt: at(0), AbbyyProcessedAt: at(1), ExtractionError: "unreadable"}
}

func TestStateOf(t *testing.T) {
	resent := entity.Attachment{AbbyySentAt: at(5), AbbyyProcessedAt: at(1)}
	recoveredAfterFailure := entity.Attachment{AbbyySentAt: at(5), AbbyyProcessedAt: at(6)}

	tests := []struct {
		name string
		att  entity.Attachment
		want AttachmentState
	}{
		{"never sent", notSent(), StateNotSent},
		{"sent, no result", extracting(), StateExtracting},
		{"result arrived", completed(), StateCompleted},
		{"result failed", failed(), StateFailed},
		{"re-sent after earlier result", resent, StateExtracting},
		{"re-sent and completed", recoveredAfterFailure, StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.att))
		})
	}
}

func TestDeriveProcessingStatus(t *testing.T) {
	tests := []struct {
		name        string
		attachments []entity.Attachment
		want        entity.ProcessingStatus
	}{
		{"all completed", []entity.Attachment{completed(), completed()}, entity.ProcessingCompleted},
		{"completed and failed", []entity.Attachment{completed(), failed()}, entity.ProcessingFailed},
		{"extracting beats not-sent", []entity.Attachment{extracting(), notSent()}, entity.ProcessingExtracting},
		{"not-sent beats completed", []entity.Attachment{completed(), notSent()}, entity.ProcessingPending},
		{"failed beats extracting", []entity.Attachment{extracting(), failed(), notSent()}, entity.ProcessingFailed},
		{"single pending", []entity.Attachment{notSent()}, entity.ProcessingPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveProcessingStatus(tt.attachments)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestDeriveProcessingStatus_NoAttachments(t *testing.T) {
	assert.Nil(t, DeriveProcessingStatus(nil))
	assert.Nil(t, DeriveProcessingStatus([]entity.Attachment{}))
}

func TestDeriveProcessingStatus_OrderIndependent(t *testing.T) {
	a := DeriveProcessingStatus([]entity.Attachment{notSent(), extracting(), completed()})
	b := DeriveProcessingStatus([]entity.Attachment{completed(), extracting(), notSent()})
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)
}

func TestRecompute(t *testing.T) {
	stale := entity.ProcessingCompleted
	e := &entity.Expense{Attachments: []entity.Attachment{extracting()}, ProcessingStatus: &stale}

	Recompute(e)
	require.NotNil(t, e.ProcessingStatus)
	assert.Equal(t, entity.ProcessingExtracting, *e.ProcessingStatus)

	e.Attachments = nil
	Recompute(e)
	assert.Nil(t, e.ProcessingStatus)
}

func TestSummarize(t *testing.T) {
	ps := func(p entity.ProcessingStatus) *entity.ProcessingStatus { return &p }
	expenses := []*entity.Expense{
		{ID: "1", Attachments: []entity.Attachment{completed()}, ProcessingStatus: ps(entity.ProcessingCompleted)},
		{ID: "2", Attachments: []entity.Attachment{extracting()}, ProcessingStatus: ps(entity.ProcessingExtracting)},
		{ID: "3", Attachments: []entity.Attachment{notSent()}, ProcessingStatus: ps(entity.ProcessingPending)},
		{ID: "4"},
		{ID: "5", Attachments: []entity.Attachment{notSent()}},
	}

	s := Summarize(expenses)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Counts[entity.ProcessingCompleted])
	assert.Equal(t, 1, s.Counts[entity.ProcessingExtracting])
	assert.Equal(t, 2, s.Counts[entity.ProcessingPending])
	assert.Equal(t, 0, s.Counts[entity.ProcessingFailed])
	assert.Len(t, s.Counts, len(entity.AllProcessingStatuses))
}
