package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/infrastructure/persistence/sqlite"
)

const expenseColumns = `
	id, title, amount, currency, category, expense_date, description, status,
	submitted_by, submitted_at, approved_by, approved_at,
	rejected_by, rejected_at, rejection_reason, paid_at, payment_reference,
	processing_status, extracted_data, version, created_at, updated_at`

const attachmentColumns = `
	id, expense_id, name, size, media_type, storage_ref, uploaded_at,
	abbyy_sent_at, abbyy_processed_at, extraction_request_id, extraction_error`

// ExpenseRepository implements port.ExpenseStore on sqlite.
// Attachments live in their own table and are rewritten with the expense.
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense and its attachments
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	if expense.Version == 0 {
		expense.Version = 1
	}

	extracted, err := marshalExtracted(expense.ExtractedData)
	if err != nil {
		return err
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO expenses (` + expenseColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			expense.ID,
			expense.Title,
			expense.Amount,
			expense.Currency,
			expense.Category,
			formatDate(expense.Date),
			expense.Description,
			expense.Status,
			expense.SubmittedBy,
			nullTime(expense.SubmittedAt),
			expense.ApprovedBy,
			nullTime(expense.ApprovedAt),
			expense.RejectedBy,
			nullTime(expense.RejectedAt),
			expense.RejectionReason,
			nullTime(expense.PaidAt),
			expense.PaymentReference,
			nullProcessingStatus(expense.ProcessingStatus),
			extracted,
			expense.Version,
			expense.CreatedAt,
			expense.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return r.insertAttachments(ctx, expense)
	})
	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("id", expense.ID), zap.Error(err))
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: expense %s already exists", entity.ErrConflict, expense.ID)
		}
		return fmt.Errorf("%w: failed to create expense: %w", entity.ErrPersistence, err)
	}
	return nil
}

// Get retrieves an expense with its attachments
func (r *ExpenseRepository) Get(ctx context.Context, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	expense, err := scanExpense(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: expense %s", entity.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to get expense: %w", entity.ErrPersistence, err)
	}

	byExpense, err := r.loadAttachments(ctx, `WHERE expense_id = ?`, id)
	if err != nil {
		return nil, err
	}
	expense.Attachments = byExpense[id]
	return expense, nil
}

// Update replaces the stored expense if its version still equals expectedVersion
func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense, expectedVersion int64) error {
	extracted, err := marshalExtracted(expense.ExtractedData)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()

	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			UPDATE expenses SET
				title = ?, amount = ?, currency = ?, category = ?, expense_date = ?,
				description = ?, status = ?, submitted_by = ?, submitted_at = ?,
				approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
				rejection_reason = ?, paid_at = ?, payment_reference = ?,
				processing_status = ?, extracted_data = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`
		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			expense.Title,
			expense.Amount,
			expense.Currency,
			expense.Category,
			formatDate(expense.Date),
			expense.Description,
			expense.Status,
			expense.SubmittedBy,
			nullTime(expense.SubmittedAt),
			expense.ApprovedBy,
			nullTime(expense.ApprovedAt),
			expense.RejectedBy,
			nullTime(expense.RejectedAt),
			expense.RejectionReason,
			nullTime(expense.PaidAt),
			expense.PaymentReference,
			nullProcessingStatus(expense.ProcessingStatus),
			extracted,
			updatedAt,
			expense.ID,
			expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to update expense: %w", entity.ErrPersistence, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: failed to get affected rows: %w", entity.ErrPersistence, err)
		}
		if affected == 0 {
			return r.missingOrConflict(ctx, expense.ID, expectedVersion)
		}

		if _, err := r.db.Executor(ctx).ExecContext(ctx,
			`DELETE FROM expense_attachments WHERE expense_id = ?`, expense.ID); err != nil {
			return fmt.Errorf("%w: failed to clear attachments: %w", entity.ErrPersistence, err)
		}
		if err := r.insertAttachments(ctx, expense); err != nil {
			return fmt.Errorf("%w: %w", entity.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, entity.ErrConflict) && !errors.Is(err, entity.ErrNotFound) {
			r.logger.Error("Failed to update expense", zap.String("id", expense.ID), zap.Error(err))
		}
		return err
	}

	expense.Version = expectedVersion + 1
	expense.UpdatedAt = updatedAt
	return nil
}

// List returns every expense ordered by creation time
func (r *ExpenseRepository) List(ctx context.Context) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses ORDER BY created_at, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to list expenses: %w", entity.ErrPersistence, err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan expense: %w", entity.ErrPersistence, err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrPersistence, err)
	}

	byExpense, err := r.loadAttachments(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, expense := range expenses {
		expense.Attachments = byExpense[expense.ID]
	}
	return expenses, nil
}

func (r *ExpenseRepository) missingOrConflict(ctx context.Context, id string, expectedVersion int64) error {
	var current int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT version FROM expenses WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: expense %s", entity.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read version: %w", entity.ErrPersistence, err)
	}
	return fmt.Errorf("%w: expense %s is at version %d, expected %d", entity.ErrConflict, id, current, expectedVersion)
}

func (r *ExpenseRepository) insertAttachments(ctx context.Context, expense *entity.Expense) error {
	query := `
		INSERT INTO expense_attachments (` + attachmentColumns + `, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, att := range expense.Attachments {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			att.ID,
			expense.ID,
			att.Name,
			att.Size,
			att.MediaType,
			att.StorageRef,
			att.UploadedAt,
			nullTime(att.AbbyySentAt),
			nullTime(att.AbbyyProcessedAt),
			att.ExtractionRequestID,
			att.ExtractionError,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert attachment %s: %w", att.ID, err)
		}
	}
	return nil
}

// loadAttachments returns attachments grouped by expense id in upload order
func (r *ExpenseRepository) loadAttachments(ctx context.Context, where string, args ...interface{}) (map[string][]entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM expense_attachments ` + where + ` ORDER BY expense_id, position`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to load attachments", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to load attachments: %w", entity.ErrPersistence, err)
	}
	defer rows.Close()

	result := make(map[string][]entity.Attachment)
	for rows.Next() {
		var att entity.Attachment
		var expenseID string
		var sentAt, processedAt sql.NullTime

		if err := rows.Scan(
			&att.ID,
			&expenseID,
			&att.Name,
			&att.Size,
			&att.MediaType,
			&att.StorageRef,
			&att.UploadedAt,
			&sentAt,
			&processedAt,
			&att.ExtractionRequestID,
			&att.ExtractionError,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan attachment: %w", entity.ErrPersistence, err)
		}

		att.AbbyySentAt = timePtr(sentAt)
		att.AbbyyProcessedAt = timePtr(processedAt)
		result[expenseID] = append(result[expenseID], att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrPersistence, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var e entity.Expense
	var date string
	var submittedAt, approvedAt, rejectedAt, paidAt sql.NullTime
	var processingStatus, extracted sql.NullString

	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.Amount,
		&e.Currency,
		&e.Category,
		&date,
		&e.Description,
		&e.Status,
		&e.SubmittedBy,
		&submittedAt,
		&e.ApprovedBy,
		&approvedAt,
		&e.RejectedBy,
		&rejectedAt,
		&e.RejectionReason,
		&paidAt,
		&e.PaymentReference,
		&processingStatus,
		&extracted,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if date != "" {
		parsed, err := time.Parse(entity.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid expense date %q: %w", date, err)
		}
		e.Date = parsed
	}

	e.SubmittedAt = timePtr(submittedAt)
	e.ApprovedAt = timePtr(approvedAt)
	e.RejectedAt = timePtr(rejectedAt)
	e.PaidAt = timePtr(paidAt)

	if processingStatus.Valid {
		ps := entity.ProcessingStatus(processingStatus.String)
		e.ProcessingStatus = &ps
	}

	if extracted.Valid && extracted.String != "" {
		var data entity.ExtractedData
		if err := json.Unmarshal([]byte(extracted.String), &data); err != nil {
			return nil, fmt.Errorf("invalid extracted data: %w", err)
		}
		e.ExtractedData = &data
	}

	return &e, nil
}

func marshalExtracted(data *entity.ExtractedData) (sql.NullString, error) {
	if data == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: failed to encode extracted data: %w", entity.ErrPersistence, err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(entity.DateLayout)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullProcessingStatus(ps *entity.ProcessingStatus) sql.NullString {
	if ps == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*ps), Valid: true}
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

var _ port.ExpenseStore = (*ExpenseRepository)(nil)
