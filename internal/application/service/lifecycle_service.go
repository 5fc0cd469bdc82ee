package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/application/workflow"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
	domainwf "github.com/garyjia/expense-flow/internal/domain/workflow"
	"github.com/garyjia/expense-flow/pkg/utils"
	"github.com/shopspring/decimal"
)

// LifecycleService creates expenses and moves them through the approval lifecycle
type LifecycleService interface {
	Submit(ctx context.Context, draft entity.ExpenseDraft) (*entity.Expense, error)
	SaveDraft(ctx context.Context, draft entity.ExpenseDraft) (*entity.Expense, error)
	SubmitDraft(ctx context.Context, expenseID string) (*entity.Expense, error)
	StartProcessing(ctx context.Context, expenseID, actorID string) (*entity.Expense, error)
	Approve(ctx context.Context, expenseID, approverID string) (*entity.Expense, error)
	Reject(ctx context.Context, expenseID, approverID, reason string) (*entity.Expense, error)
	Settle(ctx context.Context, expenseID, actorID, reference string) (*entity.Expense, error)
	Get(ctx context.Context, expenseID string) (*entity.Expense, error)
	PermittedActions(ctx context.Context, expenseID string) ([]domainwf.Trigger, error)
}

type lifecycleServiceImpl struct {
	store      port.ExpenseStore
	engine     workflow.WorkflowEngine
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        Clock
	newID      IDGenerator
}

// LifecycleOption configures the lifecycle service
type LifecycleOption func(*lifecycleServiceImpl)

// WithLifecycleClock overrides the clock used for submission stamps
func WithLifecycleClock(now Clock) LifecycleOption {
	return func(s *lifecycleServiceImpl) { s.now = now }
}

// WithLifecycleIDs overrides expense id generation
func WithLifecycleIDs(gen IDGenerator) LifecycleOption {
	return func(s *lifecycleServiceImpl) { s.newID = gen }
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(
	store port.ExpenseStore,
	engine workflow.WorkflowEngine,
	d dispatcher.Dispatcher,
	logger Logger,
	opts ...LifecycleOption,
) LifecycleService {
	s := &lifecycleServiceImpl{
		store:      store,
		engine:     engine,
		dispatcher: d,
		logger:     logger,
		now:        utcNow,
		newID:      newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates an expense directly in the submitted status
func (s *lifecycleServiceImpl) Submit(ctx context.Context, draft entity.ExpenseDraft) (*entity.Expense, error) {
	draft = normalizeDraft(draft)
	if err := validateForSubmission(draft.Title, draft.Amount, draft.Category, draft.Date, draft.SubmittedBy, draft.Currency); err != nil {
		return nil, err
	}

	now := s.now()
	expense := newExpense(s.newID(), draft, entity.StatusSubmitted)
	expense.SubmittedAt = &now

	if err := s.store.Create(ctx, expense); err != nil {
		s.logger.Error("Failed to create expense", "title", expense.Title, "error", err)
		return nil, err
	}

	s.logger.Info("Expense submitted", "expense_id", expense.ID, "submitted_by", expense.SubmittedBy)
	s.publish(ctx, event.TypeExpenseSubmitted, expense)
	return expense, nil
}

// SaveDraft stores an incomplete expense; only title and submitter are required
func (s *lifecycleServiceImpl) SaveDraft(ctx context.Context, draft entity.ExpenseDraft) (*entity.Expense, error) {
	draft = normalizeDraft(draft)
	if draft.Title == "" {
		return nil, fmt.Errorf("%w: title is required", entity.ErrValidation)
	}
	if draft.SubmittedBy == "" {
		return nil, fmt.Errorf("%w: submitter is required", entity.ErrValidation)
	}
	if draft.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", entity.ErrValidation)
	}

	expense := newExpense(s.newID(), draft, entity.StatusDraft)
	if err := s.store.Create(ctx, expense); err != nil {
		s.logger.Error("Failed to save draft", "title", expense.Title, "error", err)
		return nil, err
	}

	s.logger.Info("Expense draft saved", "expense_id", expense.ID)
	s.publish(ctx, event.TypeExpenseDrafted, expense)
	return expense, nil
}

// SubmitDraft validates a stored draft in full and submits it
func (s *lifecycleServiceImpl) SubmitDraft(ctx context.Context, expenseID string) (*entity.Expense, error) {
	return s.transition(ctx, expenseID, domainwf.TriggerSubmit, "", func(e *entity.Expense, now time.Time) error {
		if err := validateForSubmission(e.Title, e.Amount, e.Category, e.Date, e.SubmittedBy, e.Currency); err != nil {
			return err
		}
		e.SubmittedAt = &now
		return nil
	})
}

// StartProcessing moves a submitted expense under review
func (s *lifecycleServiceImpl) StartProcessing(ctx context.Context, expenseID, actorID string) (*entity.Expense, error) {
	return s.transition(ctx, expenseID, domainwf.TriggerStartProcessing, actorID, nil)
}

// Approve records an approval decision
func (s *lifecycleServiceImpl) Approve(ctx context.Context, expenseID, approverID string) (*entity.Expense, error) {
	approverID = utils.SanitizeString(approverID)
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", entity.ErrValidation)
	}

	return s.transition(ctx, expenseID, domainwf.TriggerApprove, approverID, func(e *entity.Expense, now time.Time) error {
		e.ApprovedBy = approverID
		e.ApprovedAt = &now
		clearRejection(e)
		return nil
	})
}

// Reject records a rejection decision; the reason must not be blank
func (s *lifecycleServiceImpl) Reject(ctx context.Context, expenseID, approverID, reason string) (*entity.Expense, error) {
	reason = utils.SanitizeString(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", entity.ErrValidation)
	}
	approverID = utils.SanitizeString(approverID)
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", entity.ErrValidation)
	}

	return s.transition(ctx, expenseID, domainwf.TriggerReject, approverID, func(e *entity.Expense, now time.Time) error {
		e.RejectedBy = approverID
		e.RejectedAt = &now
		e.RejectionReason = reason
		e.ApprovedBy = ""
		e.ApprovedAt = nil
		return nil
	})
}

// Settle marks an approved expense as paid. Approval provenance is kept.
func (s *lifecycleServiceImpl) Settle(ctx context.Context, expenseID, actorID, reference string) (*entity.Expense, error) {
	reference = utils.SanitizeString(reference)
	return s.transition(ctx, expenseID, domainwf.TriggerSettle, actorID, func(e *entity.Expense, now time.Time) error {
		e.PaidAt = &now
		e.PaymentReference = reference
		return nil
	})
}

func (s *lifecycleServiceImpl) Get(ctx context.Context, expenseID string) (*entity.Expense, error) {
	return s.store.Get(ctx, expenseID)
}

func (s *lifecycleServiceImpl) PermittedActions(ctx context.Context, expenseID string) ([]domainwf.Trigger, error) {
	expense, err := s.store.Get(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	return s.engine.PermittedTriggers(expense), nil
}

func (s *lifecycleServiceImpl) transition(ctx context.Context, expenseID string, trigger domainwf.Trigger, actor string, mutate workflow.MutateFunc) (*entity.Expense, error) {
	expense, err := s.engine.TransitionState(ctx, expenseID, trigger, actor, mutate)
	if err != nil {
		s.logger.Error("Transition failed",
			"expense_id", expenseID,
			"trigger", trigger,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Expense transitioned",
		"expense_id", expenseID,
		"trigger", trigger,
		"status", expense.Status,
		"actor", actor,
	)
	return expense, nil
}

func (s *lifecycleServiceImpl) publish(ctx context.Context, typ event.Type, expense *entity.Expense) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(typ, expense.ID, map[string]interface{}{
		event.KeyToStatus:    expense.Status.String(),
		event.KeySubmittedBy: expense.SubmittedBy,
		event.KeyTitle:       expense.Title,
		event.KeyAmount:      expense.Amount.StringFixed(2),
		event.KeyCurrency:    expense.Currency,
	}))
}

func newExpense(id string, draft entity.ExpenseDraft, status entity.Status) *entity.Expense {
	return &entity.Expense{
		ID:          id,
		Title:       draft.Title,
		Amount:      draft.Amount,
		Currency:    draft.Currency,
		Category:    draft.Category,
		Date:        draft.Date,
		Description: draft.Description,
		Status:      status,
		SubmittedBy: draft.SubmittedBy,
		Attachments: []entity.Attachment{},
	}
}

func normalizeDraft(d entity.ExpenseDraft) entity.ExpenseDraft {
	d.Title = utils.SanitizeString(d.Title)
	d.Category = utils.SanitizeString(d.Category)
	d.Description = utils.SanitizeString(d.Description)
	d.SubmittedBy = utils.SanitizeString(d.SubmittedBy)
	d.Currency = utils.SanitizeString(d.Currency)
	if d.Currency == "" {
		d.Currency = entity.DefaultCurrency
	}
	if !d.Date.IsZero() {
		d.Date = entity.TruncateToDate(d.Date)
	}
	return d
}

func validateForSubmission(title string, amount decimal.Decimal, category string, date time.Time, submittedBy, currency string) error {
	switch {
	case utils.IsBlank(title):
		return fmt.Errorf("%w: title is required", entity.ErrValidation)
	case utils.IsBlank(category):
		return fmt.Errorf("%w: category is required", entity.ErrValidation)
	case date.IsZero():
		return fmt.Errorf("%w: date is required", entity.ErrValidation)
	case utils.IsBlank(submittedBy):
		return fmt.Errorf("%w: submitter is required", entity.ErrValidation)
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrValidation, err)
	}
	if err := utils.ValidateCurrency(currency); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrValidation, err)
	}
	return nil
}

func clearRejection(e *entity.Expense) {
	e.RejectedBy = ""
	e.RejectedAt = nil
	e.RejectionReason = ""
}
