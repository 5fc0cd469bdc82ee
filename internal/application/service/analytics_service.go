package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/analytics"
)

// AnalyticsService computes dashboard figures over all stored expenses
type AnalyticsService interface {
	Summary(ctx context.Context) (analytics.Summary, error)
	Export(ctx context.Context, w io.Writer) error
}

type analyticsServiceImpl struct {
	store  port.ExpenseStore
	report port.ReportWriter
	logger Logger
	now    Clock
}

// NewAnalyticsService creates a new AnalyticsService. report may be nil when
// exports are disabled.
func NewAnalyticsService(store port.ExpenseStore, report port.ReportWriter, logger Logger, now Clock) AnalyticsService {
	if now == nil {
		now = utcNow
	}
	return &analyticsServiceImpl{
		store:  store,
		report: report,
		logger: logger,
		now:    now,
	}
}

func (s *analyticsServiceImpl) Summary(ctx context.Context) (analytics.Summary, error) {
	expenses, err := s.store.List(ctx)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Compute(expenses, s.now()), nil
}

func (s *analyticsServiceImpl) Export(ctx context.Context, w io.Writer) error {
	if s.report == nil {
		return fmt.Errorf("report export is not configured")
	}

	expenses, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	summary := analytics.Compute(expenses, s.now())

	if err := s.report.Write(w, summary, expenses); err != nil {
		s.logger.Error("Failed to write analytics report", "error", err)
		return err
	}

	s.logger.Info("Analytics report exported", "expenses", len(expenses))
	return nil
}
