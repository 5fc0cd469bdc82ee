package port

import (
	"context"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ExpenseStore holds the expense collection.
//
// Get returns entity.ErrNotFound for unknown ids. Update replaces the whole
// record only if the stored Version equals expectedVersion, bumping the
// version on success and returning entity.ErrConflict otherwise. Returned
// expenses are copies; mutating them never changes the store.
type ExpenseStore interface {
	Get(ctx context.Context, id string) (*entity.Expense, error)
	Create(ctx context.Context, expense *entity.Expense) error
	Update(ctx context.Context, expense *entity.Expense, expectedVersion int64) error
	List(ctx context.Context) ([]*entity.Expense, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
