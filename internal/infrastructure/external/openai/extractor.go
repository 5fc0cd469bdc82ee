package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ErrUnsupportedMedia is returned for files that are neither PDF nor image
var ErrUnsupportedMedia = errors.New("unsupported media type")

// ChatClient is the subset of the OpenAI client used for extraction
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds settings for the receipt extractor
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxPages int
}

// ReceiptExtractor reads receipt fields from PDFs and images with a vision model.
// PDFs are rasterized page by page with MuPDF before upload.
type ReceiptExtractor struct {
	client   ChatClient
	model    string
	maxPages int
	prompts  *PromptConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewReceiptExtractor creates an extractor backed by the OpenAI API
func NewReceiptExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *ReceiptExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewReceiptExtractorWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.MaxPages, prompts, logger)
}

// NewReceiptExtractorWithClient creates an extractor using the given chat client
func NewReceiptExtractorWithClient(client ChatClient, model string, maxPages int, prompts *PromptConfig, logger *zap.Logger) *ReceiptExtractor {
	if maxPages <= 0 {
		maxPages = 2
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &ReceiptExtractor{
		client:   client,
		model:    model,
		maxPages: maxPages,
		prompts:  prompts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// receiptFields is the JSON shape requested from the model
type receiptFields struct {
	Vendor        string      `json:"vendor"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Date          string      `json:"date"`
	InvoiceNumber string      `json:"invoice_number"`
	Category      string      `json:"category"`
	Confidence    *float64    `json:"confidence"`
}

// Extract reads receipt fields from content
func (r *ReceiptExtractor) Extract(ctx context.Context, content []byte, mediaType string) (*entity.ExtractedData, error) {
	pages, pageType, err := r.toImages(content, mediaType)
	if err != nil {
		return nil, err
	}

	cfg := r.prompts.ReceiptExtraction
	prompt, err := renderTemplate(cfg.UserTemplate, map[string]interface{}{
		"Pages":      len(pages),
		"MediaType":  mediaType,
		"Categories": entity.StandardCategories,
	})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, page := range pages {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", pageType, base64.StdEncoding.EncodeToString(page)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		r.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision API")
	}

	data, err := r.parse(resp.Choices[0].Message.Content)
	if err != nil {
		r.logger.Error("Failed to parse vision API response",
			zap.Error(err),
			zap.String("content", resp.Choices[0].Message.Content))
		return nil, err
	}

	r.logger.Info("Receipt extracted",
		zap.String("vendor", data.Vendor),
		zap.Int("pages", len(pages)))
	return data, nil
}

// toImages returns the images to upload and their media type
func (r *ReceiptExtractor) toImages(content []byte, mediaType string) ([][]byte, string, error) {
	mt := strings.ToLower(mediaType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return [][]byte{content}, mt, nil
	case strings.Contains(mt, "pdf"):
		pages, err := r.rasterizePDF(content)
		if err != nil {
			return nil, "", err
		}
		return pages, "image/jpeg", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
	}
}

// rasterizePDF renders up to maxPages pages as JPEG
func (r *ReceiptExtractor) rasterizePDF(content []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count > r.maxPages {
		count = r.maxPages
	}

	pages := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.Image(i)
		if err != nil {
			r.logger.Warn("Failed to render PDF page", zap.Int("page", i), zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			r.logger.Warn("Failed to encode PDF page", zap.Int("page", i), zap.Error(err))
			continue
		}
		pages = append(pages, buf.Bytes())
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages rendered from PDF")
	}
	return pages, nil
}

func (r *ReceiptExtractor) parse(content string) (*entity.ExtractedData, error) {
	var fields receiptFields
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	data := &entity.ExtractedData{
		Vendor:        strings.TrimSpace(fields.Vendor),
		Currency:      strings.ToUpper(strings.TrimSpace(fields.Currency)),
		InvoiceNumber: strings.TrimSpace(fields.InvoiceNumber),
		Category:      strings.TrimSpace(fields.Category),
		ExtractedAt:   r.now(),
	}

	if s := fields.Amount.String(); s != "" {
		if amount, err := decimal.NewFromString(s); err == nil && amount.IsPositive() {
			data.Amount = &amount
		}
	}

	if d := strings.TrimSpace(fields.Date); d != "" {
		if t, err := time.Parse(entity.DateLayout, d); err == nil {
			data.Date = t.Format(entity.DateLayout)
		}
	}

	if fields.Confidence != nil {
		c := *fields.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		data.Confidence = &c
	}

	return data, nil
}

// extractJSON returns the first balanced JSON object in content, or ""
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
