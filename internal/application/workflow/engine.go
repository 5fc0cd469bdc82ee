package workflow

import (
	"context"
	"time"

	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
	domainwf "github.com/garyjia/expense-flow/internal/domain/workflow"
)

// ProcessingMode controls how an expense reaches the processing status
type ProcessingMode string

const (
	// ProcessingManual reaches processing only through an explicit action
	ProcessingManual ProcessingMode = "manual"
	// ProcessingOnExtraction also moves a submitted expense to processing on its first extraction request
	ProcessingOnExtraction ProcessingMode = "on_extraction"
)

// IsValid returns true for the known modes
func (m ProcessingMode) IsValid() bool {
	return m == ProcessingManual || m == ProcessingOnExtraction
}

// MutateFunc sets the side-effect fields of a transition on the record.
// It runs after the state machine accepted the trigger and before persisting.
type MutateFunc func(expense *entity.Expense, now time.Time) error

// WorkflowEngine applies lifecycle triggers to stored expenses
type WorkflowEngine interface {
	// TransitionState fires trigger for the expense, applies mutate and persists the result
	TransitionState(ctx context.Context, expenseID string, trigger domainwf.Trigger, actor string, mutate MutateFunc) (*entity.Expense, error)

	// PermittedTriggers lists the triggers allowed from the status of expense
	PermittedTriggers(expense *entity.Expense) []domainwf.Trigger

	// StartProcessingOnExtraction moves a submitted expense to processing in memory
	// when the engine runs in on_extraction mode. The caller persists the record and
	// publishes the returned event after a successful write; nil means no change.
	StartProcessingOnExtraction(expense *entity.Expense) *event.Event
}
