package abbyy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

var sampleRequest = entity.ExtractionRequest{
	ExpenseID:    "3",
	AttachmentID: "att3",
	RequestID:    "req-1",
	FileRef:      "expenses/3/att3_hotel_invoice.pdf",
	FileName:     "hotel_invoice.pdf",
	FileType:     "application/pdf",
}

func TestClient_Submit(t *testing.T) {
	var got map[string]string
	var signature, apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		apiKey = r.Header.Get("X-Api-Key")
		assert.True(t, Verify("s3cret", body, signature))
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewClient(Config{
		Endpoint:      server.URL,
		APIKey:        "key-1",
		CallbackURL:   "https://expenses.example.com/api/extraction/callback",
		FileBaseURL:   "https://files.example.com/",
		SigningSecret: "s3cret",
	}, zap.NewNop())

	require.NoError(t, c.Submit(context.Background(), sampleRequest))
	assert.Equal(t, "key-1", apiKey)
	assert.Equal(t, "req-1", got["requestId"])
	assert.Equal(t, "att3", got["attachmentId"])
	assert.Equal(t, "https://files.example.com/expenses/3/att3_hotel_invoice.pdf", got["fileUrl"])
	assert.Equal(t, "https://expenses.example.com/api/extraction/callback", got["callbackUrl"])
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Config{
		Endpoint:            server.URL,
		ConsecutiveFailures: 2,
		BreakerTimeout:      time.Minute,
	}, zap.NewNop())
	ctx := context.Background()

	err := c.Submit(ctx, sampleRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	require.Error(t, c.Submit(ctx, sampleRequest))
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err = c.Submit(ctx, sampleRequest)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSignature(t *testing.T) {
	body := []byte(`{"expenseId":"1"}`)
	sig := Sign("secret", body)

	assert.True(t, Verify("secret", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("secret", []byte(`{"expenseId":"2"}`), sig))
	assert.False(t, Verify("secret", body, "sha256=zz"))
	assert.False(t, Verify("secret", body, sig[len(signaturePrefix):]))
	assert.False(t, Verify("", body, Sign("", body)))
}
