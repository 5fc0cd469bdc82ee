// Package analytics aggregates spend figures over a snapshot of expenses.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// TrendMonths is the number of calendar months in the monthly trend
const TrendMonths = 6

// MonthLabelLayout formats trend labels, e.g. "Jan 2024"
const MonthLabelLayout = "Jan 2006"

var hundred = decimal.NewFromInt(100)

// MonthlyPoint is one calendar month in the trend
type MonthlyPoint struct {
	Label  string          `json:"month"`
	Year   int             `json:"year"`
	Month  time.Month      `json:"monthNumber"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// Summary is the result of Compute. Amounts are summed across currencies.
type Summary struct {
	TotalAmount     decimal.Decimal            `json:"totalAmount"`
	TotalCount      int                        `json:"totalCount"`
	LastMonthAmount decimal.Decimal            `json:"lastMonthAmount"`
	LastMonthCount  int                        `json:"lastMonthCount"`
	PendingCount    int                        `json:"pendingCount"`
	ProcessingCount int                        `json:"processingCount"`
	Growth          float64                    `json:"growth"`
	CategoryTotals  map[string]decimal.Decimal `json:"categoryTotals"`
	StatusCounts    map[entity.Status]int      `json:"statusCounts"`
	MonthlyTrend    []MonthlyPoint             `json:"monthlyTrend"`
	GeneratedAt     time.Time                  `json:"generatedAt"`
}

// monthIndex maps a calendar month to a comparable integer
func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func fromIndex(idx int) (int, time.Month) {
	return idx / 12, time.Month(idx%12 + 1)
}

// Compute builds the analytics summary for expenses as seen at now.
//
// The current-month window has no upper bound, so future-dated expenses count
// toward it. Category totals cover every non-rejected expense regardless of date.
func Compute(expenses []*entity.Expense, now time.Time) Summary {
	current := monthIndex(now.Year(), now.Month())
	last := current - 1
	oldest := current - (TrendMonths - 1)

	s := Summary{
		TotalAmount:     decimal.Zero,
		LastMonthAmount: decimal.Zero,
		CategoryTotals:  make(map[string]decimal.Decimal),
		StatusCounts:    make(map[entity.Status]int, len(entity.AllStatuses)),
		MonthlyTrend:    make([]MonthlyPoint, TrendMonths),
		GeneratedAt:     now,
	}
	for _, st := range entity.AllStatuses {
		s.StatusCounts[st] = 0
	}
	for i := range s.MonthlyTrend {
		y, m := fromIndex(oldest + i)
		s.MonthlyTrend[i] = MonthlyPoint{
			Label:  time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format(MonthLabelLayout),
			Year:   y,
			Month:  m,
			Amount: decimal.Zero,
		}
	}

	for _, e := range expenses {
		s.StatusCounts[e.Status]++
		if e.Status == entity.StatusSubmitted {
			s.PendingCount++
		}
		if e.ProcessingStatusOrEmpty() == entity.ProcessingExtracting {
			s.ProcessingCount++
		}

		if e.Status == entity.StatusRejected {
			continue
		}

		s.CategoryTotals[e.Category] = s.CategoryTotals[e.Category].Add(e.Amount)

		idx := monthIndex(e.Date.Year(), e.Date.Month())
		if idx >= current {
			s.TotalAmount = s.TotalAmount.Add(e.Amount)
			s.TotalCount++
		}
		if idx == last {
			s.LastMonthAmount = s.LastMonthAmount.Add(e.Amount)
			s.LastMonthCount++
		}
		if idx >= oldest && idx <= current {
			p := &s.MonthlyTrend[idx-oldest]
			p.Amount = p.Amount.Add(e.Amount)
			p.Count++
		}
	}

	s.Growth = Growth(s.TotalAmount, s.LastMonthAmount)
	return s
}

// Growth returns the percentage change from previous to current, or 0 when
// previous is not positive.
func Growth(current, previous decimal.Decimal) float64 {
	if !previous.IsPositive() {
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(hundred).InexactFloat64()
}
