// Package query filters and sorts expense lists for presentation.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// All disables a status or category filter
const All = "all"

// SortBy names the sort key
type SortBy string

const (
	SortByDate   SortBy = "date"
	SortByAmount SortBy = "amount"
	SortByStatus SortBy = "status"
)

// Order is the sort direction
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Criteria selects expenses. Empty fields behave like All.
type Criteria struct {
	SearchTerm string
	Status     string
	Category   string
}

// Categories lists the standard expense categories
func Categories() []string {
	return append([]string(nil), entity.StandardCategories...)
}

// ParseSortBy validates a sort key, defaulting to date when empty
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByDate:
		return SortByDate, nil
	case SortByAmount:
		return SortByAmount, nil
	case SortByStatus:
		return SortByStatus, nil
	default:
		return "", fmt.Errorf("%w: unknown sort key %q", entity.ErrValidation, s)
	}
}

// ParseOrder validates a sort order, defaulting to desc when empty
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderDesc:
		return OrderDesc, nil
	case OrderAsc:
		return OrderAsc, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", entity.ErrValidation, s)
	}
}

func matchesAll(filter string) bool {
	return filter == "" || filter == All
}

// Matches reports whether a single expense passes the criteria
func (c Criteria) Matches(e *entity.Expense) bool {
	if c.SearchTerm != "" {
		term := strings.ToLower(c.SearchTerm)
		if !strings.Contains(strings.ToLower(e.Title), term) &&
			!strings.Contains(strings.ToLower(e.Description), term) &&
			!strings.Contains(strings.ToLower(e.SubmittedBy), term) {
			return false
		}
	}
	if !matchesAll(c.Status) && string(e.Status) != c.Status {
		return false
	}
	if !matchesAll(c.Category) && e.Category != c.Category {
		return false
	}
	return true
}

// Filter returns the expenses matching criteria, preserving input order
func Filter(expenses []*entity.Expense, c Criteria) []*entity.Expense {
	out := make([]*entity.Expense, 0, len(expenses))
	for _, e := range expenses {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sort returns a sorted copy of expenses. Equal keys fall back to ascending id.
func Sort(expenses []*entity.Expense, by SortBy, order Order) []*entity.Expense {
	out := make([]*entity.Expense, len(expenses))
	copy(out, expenses)

	compare := func(a, b *entity.Expense) int {
		switch by {
		case SortByAmount:
			return a.Amount.Cmp(b.Amount)
		case SortByStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.Date.Compare(b.Date)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if order == OrderDesc {
			return c > 0
		}
		return c < 0
	})
	return out
}
