// Package export renders analytics reports as spreadsheets.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/domain/analytics"
	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// Sheet names of the workbook
const (
	SheetSummary    = "Summary"
	SheetTrend      = "Monthly Trend"
	SheetCategories = "Categories"
	SheetStatuses   = "Statuses"
	SheetExpenses   = "Expenses"
)

const moneyFormat = "#,##0.00"

// ExcelReport implements port.ReportWriter with an xlsx workbook
type ExcelReport struct {
	logger *zap.Logger
}

// NewExcelReport creates a new ExcelReport
func NewExcelReport(logger *zap.Logger) *ExcelReport {
	return &ExcelReport{logger: logger}
}

// ContentType returns the xlsx MIME type
func (r *ExcelReport) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns ".xlsx"
func (r *ExcelReport) FileExtension() string {
	return ".xlsx"
}

// Write renders summary and expenses to w
func (r *ExcelReport) Write(w io.Writer, summary analytics.Summary, expenses []*entity.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetTrend, SheetCategories, SheetStatuses, SheetExpenses} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(moneyFormat)})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	sw := &sheetWriter{f: f, header: header, money: money}
	sw.summary(summary)
	sw.trend(summary.MonthlyTrend)
	sw.categories(summary.CategoryTotals)
	sw.statuses(summary.StatusCounts)
	sw.expenses(expenses)
	if sw.err != nil {
		return sw.err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Debug("Analytics workbook written", zap.Int("expenses", len(expenses)))
	return nil
}

// sheetWriter keeps the first error so rows can be written without checks in between
type sheetWriter struct {
	f      *excelize.File
	header int
	money  int
	err    error
}

func (s *sheetWriter) row(sheet string, row int, values ...interface{}) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
		s.err = fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
}

func (s *sheetWriter) style(sheet, from, to string, style int) {
	if s.err != nil {
		return
	}
	if err := s.f.SetCellStyle(sheet, from, to, style); err != nil {
		s.err = err
	}
}

func (s *sheetWriter) width(sheet, from, to string, width float64) {
	if s.err != nil {
		return
	}
	if err := s.f.SetColWidth(sheet, from, to, width); err != nil {
		s.err = err
	}
}

func (s *sheetWriter) headerRow(sheet string, columns ...interface{}) {
	s.row(sheet, 1, columns...)
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	s.style(sheet, "A1", last, s.header)
}

func (s *sheetWriter) summary(sum analytics.Summary) {
	rows := [][]interface{}{
		{"Generated at", sum.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Total amount", sum.TotalAmount.InexactFloat64()},
		{"Total count", sum.TotalCount},
		{"Last month amount", sum.LastMonthAmount.InexactFloat64()},
		{"Last month count", sum.LastMonthCount},
		{"Growth %", sum.Growth},
		{"Pending", sum.PendingCount},
		{"Processing", sum.ProcessingCount},
	}
	s.headerRow(SheetSummary, "Metric", "Value")
	for i, r := range rows {
		s.row(SheetSummary, i+2, r...)
	}
	s.style(SheetSummary, "B3", "B3", s.money)
	s.style(SheetSummary, "B5", "B5", s.money)
	s.width(SheetSummary, "A", "B", 22)
}

func (s *sheetWriter) trend(points []analytics.MonthlyPoint) {
	s.headerRow(SheetTrend, "Month", "Amount", "Count")
	for i, p := range points {
		s.row(SheetTrend, i+2, p.Label, p.Amount.InexactFloat64(), p.Count)
	}
	if len(points) > 0 {
		s.style(SheetTrend, "B2", fmt.Sprintf("B%d", len(points)+1), s.money)
	}
	s.width(SheetTrend, "A", "C", 14)
}

func (s *sheetWriter) categories(totals map[string]decimal.Decimal) {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	s.headerRow(SheetCategories, "Category", "Amount")
	for i, name := range names {
		s.row(SheetCategories, i+2, name, totals[name].InexactFloat64())
	}
	if len(names) > 0 {
		s.style(SheetCategories, "B2", fmt.Sprintf("B%d", len(names)+1), s.money)
	}
	s.width(SheetCategories, "A", "A", 26)
	s.width(SheetCategories, "B", "B", 14)
}

func (s *sheetWriter) statuses(counts map[entity.Status]int) {
	s.headerRow(SheetStatuses, "Status", "Count")
	for i, status := range entity.AllStatuses {
		s.row(SheetStatuses, i+2, status.String(), counts[status])
	}
	s.width(SheetStatuses, "A", "B", 14)
}

func (s *sheetWriter) expenses(expenses []*entity.Expense) {
	s.headerRow(SheetExpenses, "ID", "Title", "Date", "Category", "Amount", "Currency", "Status", "Submitted by", "Processing")
	for i, e := range expenses {
		s.row(SheetExpenses, i+2,
			e.ID,
			e.Title,
			e.Date.Format(entity.DateLayout),
			e.Category,
			e.Amount.InexactFloat64(),
			e.Currency,
			e.Status.String(),
			e.SubmittedBy,
			e.ProcessingStatusOrEmpty().String(),
		)
	}
	if len(expenses) > 0 {
		s.style(SheetExpenses, "E2", fmt.Sprintf("E%d", len(expenses)+1), s.money)
	}
	s.width(SheetExpenses, "A", "I", 16)
}

func strPtr(s string) *string {
	return &s
}
