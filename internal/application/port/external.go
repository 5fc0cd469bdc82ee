package port

import (
	"context"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ExtractionClient hands a file to the document-extraction service.
// Submit only acknowledges receipt; the result arrives later as a completion.
type ExtractionClient interface {
	Submit(ctx context.Context, req entity.ExtractionRequest) error
}

// ExtractionCompleter accepts extraction results, whatever transport delivered them
type ExtractionCompleter interface {
	CompleteExtraction(ctx context.Context, result entity.ExtractionResult) (*entity.Expense, error)
}

// ReceiptExtractor reads receipt fields from file content in-process
type ReceiptExtractor interface {
	Extract(ctx context.Context, content []byte, mediaType string) (*entity.ExtractedData, error)
}

// MessageSender delivers a plain text message to a user of the chat platform
type MessageSender interface {
	SendText(ctx context.Context, userID string, content string) error
}
