package port

import (
	"io"

	"github.com/garyjia/expense-flow/internal/domain/analytics"
	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ReportWriter renders an analytics summary and its expenses as a report file
type ReportWriter interface {
	Write(w io.Writer, summary analytics.Summary, expenses []*entity.Expense) error
	ContentType() string
	FileExtension() string
}
