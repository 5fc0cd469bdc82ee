// Package abbyy submits receipt extraction requests to an external
// document-capture gateway. Results come back asynchronously on the
// extraction callback endpoint.
package abbyy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("extraction gateway unavailable")

// Config holds gateway and circuit breaker settings
type Config struct {
	Endpoint       string
	APIKey         string
	CallbackURL    string
	FileBaseURL    string
	SigningSecret  string
	RequestTimeout time.Duration

	// Breaker opens after this many consecutive failures and probes again after BreakerTimeout
	ConsecutiveFailures uint32
	BreakerTimeout      time.Duration
}

// Client implements port.ExtractionClient over HTTP
type Client struct {
	config  Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// submission is the body posted to the gateway
type submission struct {
	entity.ExtractionRequest
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// NewClient creates a new gateway client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.RequestTimeout},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "abbyy",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Extraction gateway circuit changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Submit posts one extraction request. The gateway acknowledges with 2xx;
// anything else is a failed dispatch.
func (c *Client) Submit(ctx context.Context, req entity.ExtractionRequest) error {
	body, err := json.Marshal(submission{
		ExtractionRequest: c.withFileURL(req),
		CallbackURL:       c.config.CallbackURL,
	})
	if err != nil {
		return fmt.Errorf("failed to encode extraction request: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		c.logger.Error("Extraction gateway request failed",
			zap.String("expense_id", req.ExpenseID),
			zap.String("attachment_id", req.AttachmentID),
			zap.Error(err))
		return err
	}

	c.logger.Info("Extraction request accepted",
		zap.String("expense_id", req.ExpenseID),
		zap.String("attachment_id", req.AttachmentID),
		zap.String("request_id", req.RequestID))
	return nil
}

// State returns the circuit breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("X-Api-Key", c.config.APIKey)
	}
	if c.config.SigningSecret != "" {
		httpReq.Header.Set(SignatureHeader, Sign(c.config.SigningSecret, body))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) withFileURL(req entity.ExtractionRequest) entity.ExtractionRequest {
	if c.config.FileBaseURL != "" {
		req.FileRef = strings.TrimRight(c.config.FileBaseURL, "/") + "/" + strings.TrimLeft(req.FileRef, "/")
	}
	return req
}
