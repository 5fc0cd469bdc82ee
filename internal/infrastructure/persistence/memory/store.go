// Package memory provides an in-process ExpenseStore used by tests and by
// deployments configured without a database file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// Store keeps expenses in a map guarded by a RWMutex. Values are cloned on
// the way in and out.
type Store struct {
	mu       sync.RWMutex
	expenses map[string]*entity.Expense
	now      func() time.Time
}

// NewStore creates an empty store, optionally seeded with expenses
func NewStore(seed ...*entity.Expense) *Store {
	s := &Store{
		expenses: make(map[string]*entity.Expense, len(seed)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, e := range seed {
		c := e.Clone()
		if c.Version == 0 {
			c.Version = 1
		}
		s.expenses[c.ID] = c
	}
	return s
}

func (s *Store) Get(_ context.Context, id string) (*entity.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, fmt.Errorf("%w: expense %s", entity.ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (s *Store) Create(_ context.Context, expense *entity.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[expense.ID]; exists {
		return fmt.Errorf("%w: expense %s already exists", entity.ErrConflict, expense.ID)
	}

	now := s.now()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	if expense.Version == 0 {
		expense.Version = 1
	}
	s.expenses[expense.ID] = expense.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, expense *entity.Expense, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.expenses[expense.ID]
	if !ok {
		return fmt.Errorf("%w: expense %s", entity.ErrNotFound, expense.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: expense %s is at version %d, expected %d",
			entity.ErrConflict, expense.ID, current.Version, expectedVersion)
	}

	expense.Version = expectedVersion + 1
	expense.UpdatedAt = s.now()
	expense.CreatedAt = current.CreatedAt
	s.expenses[expense.ID] = expense.Clone()
	return nil
}

// List returns all expenses ordered by creation time, then id
func (s *Store) List(_ context.Context) ([]*entity.Expense, error) {
	s.mu.RLock()
	out := make([]*entity.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ port.ExpenseStore = (*Store)(nil)
