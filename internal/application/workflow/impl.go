package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
	domainwf "github.com/garyjia/expense-flow/internal/domain/workflow"
)

var triggerEvents = map[domainwf.Trigger]event.Type{
	domainwf.TriggerSubmit:          event.TypeExpenseSubmitted,
	domainwf.TriggerStartProcessing: event.TypeExpenseProcessingStarted,
	domainwf.TriggerApprove:         event.TypeExpenseApproved,
	domainwf.TriggerReject:          event.TypeExpenseRejected,
	domainwf.TriggerSettle:          event.TypeExpensePaid,
}

type engineImpl struct {
	store          port.ExpenseStore
	dispatcher     dispatcher.Dispatcher
	processingMode ProcessingMode
	now            func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithProcessingMode sets how expenses reach the processing status
func WithProcessingMode(mode ProcessingMode) EngineOption {
	return func(e *engineImpl) {
		e.processingMode = mode
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(store port.ExpenseStore, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		store:          store,
		processingMode: ProcessingManual,
		now:            func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) TransitionState(ctx context.Context, expenseID string, trigger domainwf.Trigger, actor string, mutate MutateFunc) (*entity.Expense, error) {
	expense, err := e.store.Get(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	previous := domainwf.State(expense.Status)
	if !previous.IsValid() {
		return nil, fmt.Errorf("%w: expense %s has unknown status %q", entity.ErrTransition, expenseID, expense.Status)
	}

	machine := BuildExpenseStateMachine(previous)
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrTransition, err)
	}

	now := e.now()
	expense.Status = entity.Status(machine.State())
	if mutate != nil {
		if err := mutate(expense, now); err != nil {
			return nil, err
		}
	}

	if err := e.store.Update(ctx, expense, expense.Version); err != nil {
		return nil, err
	}

	if e.dispatcher != nil {
		evt := transitionEvent(trigger, previous, expense, actor)
		// detached from the request so handlers outlive it
		e.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
	}

	return expense, nil
}

func (e *engineImpl) PermittedTriggers(expense *entity.Expense) []domainwf.Trigger {
	state := domainwf.State(expense.Status)
	if !state.IsValid() {
		return []domainwf.Trigger{}
	}
	return BuildExpenseStateMachine(state).PermittedTriggers()
}

func (e *engineImpl) StartProcessingOnExtraction(expense *entity.Expense) *event.Event {
	if e.processingMode != ProcessingOnExtraction || expense == nil || expense.Status != entity.StatusSubmitted {
		return nil
	}

	machine := BuildExpenseStateMachine(domainwf.StateSubmitted)
	if !machine.CanFire(domainwf.TriggerStartProcessing) {
		return nil
	}
	if err := machine.Fire(context.Background(), domainwf.TriggerStartProcessing); err != nil {
		return nil
	}

	expense.Status = entity.Status(machine.State())
	return transitionEvent(domainwf.TriggerStartProcessing, domainwf.StateSubmitted, expense, "system")
}

func transitionEvent(trigger domainwf.Trigger, previous domainwf.State, expense *entity.Expense, actor string) *event.Event {
	return event.NewEvent(triggerEvents[trigger], expense.ID, map[string]interface{}{
		event.KeyFromStatus:  previous.String(),
		event.KeyToStatus:    string(expense.Status),
		event.KeyActor:       actor,
		event.KeySubmittedBy: expense.SubmittedBy,
		event.KeyTitle:       expense.Title,
		event.KeyAmount:      expense.Amount.StringFixed(2),
		event.KeyCurrency:    expense.Currency,
		event.KeyReason:      expense.RejectionReason,
	})
}
