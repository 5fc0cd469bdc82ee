package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
	"github.com/garyjia/expense-flow/internal/domain/extraction"
	"github.com/garyjia/expense-flow/pkg/utils"
)

// ExtractionService tracks receipt files and their extraction requests
type ExtractionService interface {
	// AddAttachment stores a file and appends it to the expense
	AddAttachment(ctx context.Context, expenseID string, upload entity.AttachmentUpload) (*entity.Expense, *entity.Attachment, error)

	// RequestExtraction sends one attachment to the extraction service
	RequestExtraction(ctx context.Context, expenseID, attachmentID string) (*entity.Expense, error)

	// CompleteExtraction applies a success or failure result for an in-flight request
	CompleteExtraction(ctx context.Context, result entity.ExtractionResult) (*entity.Expense, error)

	// ProcessingSummary counts expenses per processing status
	ProcessingSummary(ctx context.Context) (extraction.Summary, error)
}

type extractionServiceImpl struct {
	store       port.ExpenseStore
	client      port.ExtractionClient
	storage     port.FileStorage
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	locks       *keyedMutex
	now         Clock
	newID       IDGenerator
	autoRequest bool
	processing  ProcessingStarter
}

// ProcessingStarter applies the on_extraction status change to an expense in memory
type ProcessingStarter interface {
	StartProcessingOnExtraction(expense *entity.Expense) *event.Event
}

// ExtractionOption configures the extraction service
type ExtractionOption func(*extractionServiceImpl)

// WithExtractionClock overrides the clock used for sent/processed stamps
func WithExtractionClock(now Clock) ExtractionOption {
	return func(s *extractionServiceImpl) { s.now = now }
}

// WithExtractionIDs overrides attachment and request id generation
func WithExtractionIDs(gen IDGenerator) ExtractionOption {
	return func(s *extractionServiceImpl) { s.newID = gen }
}

// WithAutoRequest requests extraction as soon as a PDF or image is attached
func WithAutoRequest(enabled bool) ExtractionOption {
	return func(s *extractionServiceImpl) { s.autoRequest = enabled }
}

// WithExtractionDispatcher sets the dispatcher for attachment and extraction events
func WithExtractionDispatcher(d dispatcher.Dispatcher) ExtractionOption {
	return func(s *extractionServiceImpl) { s.dispatcher = d }
}

// WithProcessingStarter lets an extraction request also move a submitted expense to
// processing, in the same write that stamps the request
func WithProcessingStarter(p ProcessingStarter) ExtractionOption {
	return func(s *extractionServiceImpl) { s.processing = p }
}

// NewExtractionService creates a new ExtractionService
func NewExtractionService(
	store port.ExpenseStore,
	client port.ExtractionClient,
	storage port.FileStorage,
	logger Logger,
	opts ...ExtractionOption,
) ExtractionService {
	s := &extractionServiceImpl{
		store:   store,
		client:  client,
		storage: storage,
		logger:  logger,
		locks:   newKeyedMutex(),
		now:     utcNow,
		newID:   newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *extractionServiceImpl) AddAttachment(ctx context.Context, expenseID string, upload entity.AttachmentUpload) (*entity.Expense, *entity.Attachment, error) {
	name := path.Base(utils.SanitizeString(strings.ReplaceAll(upload.Name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return nil, nil, fmt.Errorf("%w: file name is required", entity.ErrValidation)
	}
	if len(upload.Content) == 0 {
		return nil, nil, fmt.Errorf("%w: file %s is empty", entity.ErrValidation, name)
	}
	mediaType := strings.ToLower(utils.SanitizeString(upload.MediaType))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	unlock := s.locks.Lock(expenseID)
	expense, err := s.store.Get(ctx, expenseID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if expense.Status.IsTerminal() {
		unlock()
		return nil, nil, fmt.Errorf("%w: cannot attach files to a %s expense", entity.ErrTransition, expense.Status)
	}

	attachmentID := s.newID()
	ref := path.Join("expenses", expenseID, attachmentID+"_"+name)
	if err := s.storage.Save(ctx, ref, upload.Content); err != nil {
		unlock()
		s.logger.Error("Failed to store attachment", "expense_id", expenseID, "file", name, "error", err)
		return nil, nil, fmt.Errorf("%w: %w", entity.ErrPersistence, err)
	}

	expense.Attachments = append(expense.Attachments, entity.Attachment{
		ID:         attachmentID,
		Name:       name,
		Size:       int64(len(upload.Content)),
		MediaType:  mediaType,
		StorageRef: ref,
		UploadedAt: s.now(),
	})
	extraction.Recompute(expense)

	if err := s.store.Update(ctx, expense, expense.Version); err != nil {
		unlock()
		if delErr := s.storage.Delete(ctx, ref); delErr != nil {
			s.logger.Error("Failed to remove orphaned attachment", "ref", ref, "error", delErr)
		}
		return nil, nil, err
	}
	unlock()

	_, att := expense.Attachment(attachmentID)
	added := *att
	s.logger.Info("Attachment added", "expense_id", expenseID, "attachment_id", attachmentID, "type", mediaType)
	s.publish(ctx, event.TypeAttachmentAdded, expenseID, map[string]interface{}{
		event.KeyAttachmentID: attachmentID,
	})

	if s.autoRequest && added.IsExtractable() {
		updated, err := s.RequestExtraction(ctx, expenseID, attachmentID)
		if err != nil {
			s.logger.Error("Automatic extraction request failed", "expense_id", expenseID, "attachment_id", attachmentID, "error", err)
			return expense, &added, nil
		}
		_, att := updated.Attachment(attachmentID)
		added = *att
		expense = updated
	}

	return expense, &added, nil
}

func (s *extractionServiceImpl) RequestExtraction(ctx context.Context, expenseID, attachmentID string) (*entity.Expense, error) {
	unlock := s.locks.Lock(expenseID)
	expense, err := s.store.Get(ctx, expenseID)
	if err != nil {
		unlock()
		return nil, err
	}

	_, att := expense.Attachment(attachmentID)
	if att == nil {
		unlock()
		return nil, fmt.Errorf("%w: attachment %s on expense %s", entity.ErrNotFound, attachmentID, expenseID)
	}
	if !att.IsExtractable() {
		unlock()
		return nil, fmt.Errorf("%w: attachment %s has unsupported type %s", entity.ErrValidation, attachmentID, att.MediaType)
	}

	sentAt := notBefore(s.now(), att.AbbyyProcessedAt)
	requestID := s.newID()
	att.AbbyySentAt = &sentAt
	att.ExtractionRequestID = requestID
	att.ExtractionError = ""
	extraction.Recompute(expense)

	var started *event.Event
	if s.processing != nil {
		started = s.processing.StartProcessingOnExtraction(expense)
	}

	if err := s.store.Update(ctx, expense, expense.Version); err != nil {
		unlock()
		return nil, err
	}
	req := entity.ExtractionRequest{
		ExpenseID:    expenseID,
		AttachmentID: attachmentID,
		RequestID:    requestID,
		FileRef:      att.StorageRef,
		FileName:     att.Name,
		FileType:     att.MediaType,
	}
	unlock()

	s.logger.Info("Extraction requested", "expense_id", expenseID, "attachment_id", attachmentID, "request_id", requestID)
	if started != nil && s.dispatcher != nil {
		s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), started)
	}
	s.publish(ctx, event.TypeExtractionRequested, expenseID, map[string]interface{}{
		event.KeyAttachmentID: attachmentID,
		event.KeyRequestID:    requestID,
	})

	if s.client == nil {
		return s.absorbDispatchFailure(ctx, req, expense, fmt.Errorf("no extraction client configured"))
	}
	if err := s.client.Submit(ctx, req); err != nil {
		return s.absorbDispatchFailure(ctx, req, expense, err)
	}
	return expense, nil
}

// absorbDispatchFailure records a failed submission as a failed completion
func (s *extractionServiceImpl) absorbDispatchFailure(ctx context.Context, req entity.ExtractionRequest, fallback *entity.Expense, cause error) (*entity.Expense, error) {
	s.logger.Error("Extraction dispatch failed",
		"expense_id", req.ExpenseID,
		"attachment_id", req.AttachmentID,
		"request_id", req.RequestID,
		"error", cause,
	)

	updated, err := s.CompleteExtraction(context.WithoutCancel(ctx), entity.ExtractionResult{
		ExpenseID:    req.ExpenseID,
		AttachmentID: req.AttachmentID,
		RequestID:    req.RequestID,
		Success:      false,
		Error:        fmt.Sprintf("%v: %v", entity.ErrExtraction, cause),
	})
	if err != nil {
		// a result raced in before the failure was recorded
		s.logger.Error("Failed to record dispatch failure", "expense_id", req.ExpenseID, "error", err)
		return fallback, nil
	}
	return updated, nil
}

func (s *extractionServiceImpl) CompleteExtraction(ctx context.Context, result entity.ExtractionResult) (*entity.Expense, error) {
	if result.ExpenseID == "" || result.AttachmentID == "" {
		return nil, fmt.Errorf("%w: expense and attachment ids are required", entity.ErrValidation)
	}
	if result.Success && result.Data == nil {
		return nil, fmt.Errorf("%w: successful result carries no extracted data", entity.ErrValidation)
	}
	if result.Success && result.Data.Confidence != nil {
		if c := *result.Data.Confidence; c < 0 || c > 1 {
			return nil, fmt.Errorf("%w: confidence %v outside [0,1]", entity.ErrValidation, c)
		}
	}

	unlock := s.locks.Lock(result.ExpenseID)
	defer unlock()

	expense, err := s.store.Get(ctx, result.ExpenseID)
	if err != nil {
		return nil, err
	}

	_, att := expense.Attachment(result.AttachmentID)
	if att == nil {
		return nil, fmt.Errorf("%w: attachment %s on expense %s", entity.ErrNotFound, result.AttachmentID, result.ExpenseID)
	}
	if !att.InFlight() {
		return nil, fmt.Errorf("%w: no extraction in flight for attachment %s", entity.ErrStaleCallback, result.AttachmentID)
	}
	if result.RequestID != "" && result.RequestID != att.ExtractionRequestID {
		return nil, fmt.Errorf("%w: request %s superseded by %s", entity.ErrStaleCallback, result.RequestID, att.ExtractionRequestID)
	}

	processedAt := notBefore(s.now(), att.AbbyySentAt)
	att.AbbyyProcessedAt = &processedAt

	if result.Success {
		data := result.Data.Clone()
		data.AttachmentID = att.ID
		if data.ExtractedAt.IsZero() {
			data.ExtractedAt = processedAt
		}
		att.ExtractionError = ""
		expense.ExtractedData = data
	} else {
		msg := utils.SanitizeString(result.Error)
		if msg == "" {
			msg = entity.ErrExtraction.Error()
		}
		att.ExtractionError = msg
	}
	extraction.Recompute(expense)

	if err := s.store.Update(ctx, expense, expense.Version); err != nil {
		return nil, err
	}

	s.logger.Info("Extraction completed",
		"expense_id", expense.ID,
		"attachment_id", att.ID,
		"success", result.Success,
		"processing_status", expense.ProcessingStatusOrEmpty(),
	)
	s.publish(ctx, event.TypeExtractionCompleted, expense.ID, map[string]interface{}{
		event.KeyAttachmentID: att.ID,
		event.KeyRequestID:    att.ExtractionRequestID,
		event.KeySuccess:      result.Success,
	})
	return expense, nil
}

func (s *extractionServiceImpl) ProcessingSummary(ctx context.Context) (extraction.Summary, error) {
	expenses, err := s.store.List(ctx)
	if err != nil {
		return extraction.Summary{}, err
	}
	return extraction.Summarize(expenses), nil
}

func (s *extractionServiceImpl) publish(ctx context.Context, typ event.Type, expenseID string, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(typ, expenseID, payload))
}

// notBefore returns now, or just after floor when the clock has not moved past it
func notBefore(now time.Time, floor *time.Time) time.Time {
	if floor != nil && !now.After(*floor) {
		return floor.Add(time.Nanosecond)
	}
	return now
}
