package service

import (
	"context"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/query"
)

// ListRequest carries filter and ordering for an expense listing
type ListRequest struct {
	Criteria query.Criteria
	SortBy   query.SortBy
	Order    query.Order
}

// QueryService lists expenses for the dashboard table
type QueryService interface {
	List(ctx context.Context, req ListRequest) ([]*entity.Expense, error)
	Categories() []string
}

type queryServiceImpl struct {
	store port.ExpenseStore
}

// NewQueryService creates a new QueryService
func NewQueryService(store port.ExpenseStore) QueryService {
	return &queryServiceImpl{store: store}
}

func (s *queryServiceImpl) List(ctx context.Context, req ListRequest) ([]*entity.Expense, error) {
	expenses, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = query.SortByDate
	}
	order := req.Order
	if order == "" {
		order = query.OrderDesc
	}

	return query.Sort(query.Filter(expenses, req.Criteria), sortBy, order), nil
}

func (s *queryServiceImpl) Categories() []string {
	return query.Categories()
}
