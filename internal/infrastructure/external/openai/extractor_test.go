package openai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockChatClient struct {
	createFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	lastReq    openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	return m.createFunc(ctx, req)
}

func reply(content string) func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		}, nil
	}
}

func TestReceiptExtractor_ExtractImage(t *testing.T) {
	client := &mockChatClient{createFunc: reply(`{
		"vendor": " The Steakhouse ",
		"amount": 127.50,
		"currency": "usd",
		"date": "2024-01-15",
		"invoice_number": "R-42",
		"category": "Restaurant",
		"confidence": 0.95
	}`)}
	x := NewReceiptExtractorWithClient(client, "gpt-4o", 2, nil, zap.NewNop())

	data, err := x.Extract(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "The Steakhouse", data.Vendor)
	require.NotNil(t, data.Amount)
	assert.True(t, data.Amount.Equal(decimal.RequireFromString("127.5")))
	assert.Equal(t, "USD", data.Currency)
	assert.Equal(t, "2024-01-15", data.Date)
	assert.Equal(t, "R-42", data.InvoiceNumber)
	require.NotNil(t, data.Confidence)
	assert.InDelta(t, 0.95, *data.Confidence, 1e-9)
	assert.False(t, data.ExtractedAt.IsZero())

	req := client.lastReq
	assert.Equal(t, "gpt-4o", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	parts := req.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "Meals & Entertainment")
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestReceiptExtractor_LenientParsing(t *testing.T) {
	client := &mockChatClient{createFunc: reply("Here you go:\n```json\n{\"vendor\": \"Cafe {Blue}\", \"amount\": \"-3\", \"date\": \"15/01/2024\", \"confidence\": 1.7}\n```")}
	x := NewReceiptExtractorWithClient(client, "gpt-4o", 2, nil, zap.NewNop())

	data, err := x.Extract(context.Background(), []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Cafe {Blue}", data.Vendor)
	assert.Nil(t, data.Amount, "non-positive amounts are dropped")
	assert.Empty(t, data.Date, "unparseable dates are dropped")
	require.NotNil(t, data.Confidence)
	assert.Equal(t, 1.0, *data.Confidence)
}

func TestReceiptExtractor_Errors(t *testing.T) {
	x := NewReceiptExtractorWithClient(&mockChatClient{createFunc: reply("not json")}, "m", 2, nil, zap.NewNop())
	_, err := x.Extract(context.Background(), []byte("png"), "image/png")
	assert.Error(t, err)

	_, err = x.Extract(context.Background(), []byte("a,b"), "text/csv")
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	failing := NewReceiptExtractorWithClient(&mockChatClient{
		createFunc: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("rate limited")
		},
	}, "m", 2, nil, zap.NewNop())
	_, err = failing.Extract(context.Background(), []byte("png"), "image/png")
	assert.ErrorContains(t, err, "rate limited")

	empty := NewReceiptExtractorWithClient(&mockChatClient{
		createFunc: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, nil
		},
	}, "m", 2, nil, zap.NewNop())
	_, err = empty.Extract(context.Background(), []byte("png"), "image/png")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":"}"}`, extractJSON(`prefix {"a":"}"} suffix`))
	assert.Equal(t, `{"a":{"b":1}}`, extractJSON("```json\n{\"a\":{\"b\":1}}\n```"))
	assert.Equal(t, "", extractJSON("no object"))
	assert.Equal(t, "", extractJSON(`{"unterminated": 1`))
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("receipt_extraction:\n  temperature: 0.3\n"), 0o644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, prompts.ReceiptExtraction.Temperature, 1e-6)
	assert.Equal(t, DefaultPrompts().ReceiptExtraction.UserTemplate, prompts.ReceiptExtraction.UserTemplate)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("receipt_extraction:\n  user_template: \"{{.Broken\"\n"), 0o644))
	_, err = LoadPrompts(bad)
	assert.Error(t, err)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
