package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/application/port"
	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// ErrQueueFull is returned by Submit when the request buffer is exhausted
var ErrQueueFull = errors.New("extraction queue is full")

// ErrNotRunning is returned by Submit before Start or after Stop
var ErrNotRunning = errors.New("extraction worker is not running")

// ExtractionWorkerConfig holds configuration for the extraction worker
type ExtractionWorkerConfig struct {
	Concurrency    int
	QueueSize      int
	ProcessTimeout time.Duration
}

// DefaultExtractionWorkerConfig returns default configuration
func DefaultExtractionWorkerConfig() ExtractionWorkerConfig {
	return ExtractionWorkerConfig{
		Concurrency:    2,
		QueueSize:      64,
		ProcessTimeout: 120 * time.Second,
	}
}

// ExtractionWorker runs receipt extraction in-process. It accepts requests
// through Submit, reads the stored file, calls the extractor and reports the
// outcome back through the completer.
type ExtractionWorker struct {
	config    ExtractionWorkerConfig
	extractor port.ReceiptExtractor
	storage   port.FileStorage
	logger    *zap.Logger

	completer port.ExtractionCompleter

	mu      sync.RWMutex
	queue   chan entity.ExtractionRequest
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewExtractionWorker creates a new extraction worker
func NewExtractionWorker(
	config ExtractionWorkerConfig,
	extractor port.ReceiptExtractor,
	storage port.FileStorage,
	logger *zap.Logger,
) *ExtractionWorker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = DefaultExtractionWorkerConfig().ProcessTimeout
	}
	return &ExtractionWorker{
		config:    config,
		extractor: extractor,
		storage:   storage,
		logger:    logger,
	}
}

// Bind sets the receiver of extraction results. Must be called before Start.
func (w *ExtractionWorker) Bind(completer port.ExtractionCompleter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completer = completer
}

// Submit queues a request without blocking
func (w *ExtractionWorker) Submit(ctx context.Context, req entity.ExtractionRequest) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.running {
		return ErrNotRunning
	}

	select {
	case w.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		w.rejected.Add(1)
		return ErrQueueFull
	}
}

// Start launches the worker goroutines
func (w *ExtractionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("extraction worker already running")
	}
	if w.completer == nil {
		return fmt.Errorf("extraction worker has no completer bound")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.queue = make(chan entity.ExtractionRequest, w.config.QueueSize)
	w.running = true

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(runCtx, w.queue)
	}

	w.logger.Info("ExtractionWorker started",
		zap.Int("concurrency", w.config.Concurrency),
		zap.Int("queue_size", w.config.QueueSize))
	return nil
}

// Stop drains queued requests and waits for in-progress ones
func (w *ExtractionWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("ExtractionWorker stopped",
		zap.Int64("processed_count", w.processed.Load()),
		zap.Int64("failed_count", w.failed.Load()))
	return nil
}

// Name returns the worker name for identification
func (w *ExtractionWorker) Name() string {
	return "ExtractionWorker"
}

// Stats returns runtime counters
func (w *ExtractionWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	queued := 0
	if w.queue != nil {
		queued = len(w.queue)
	}
	return Stats{
		Running:   w.running,
		Queued:    queued,
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Rejected:  w.rejected.Load(),
	}
}

func (w *ExtractionWorker) loop(ctx context.Context, queue <-chan entity.ExtractionRequest) {
	defer w.wg.Done()
	for req := range queue {
		w.process(ctx, req)
	}
}

func (w *ExtractionWorker) process(ctx context.Context, req entity.ExtractionRequest) {
	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.ProcessTimeout)
	defer cancel()

	result := entity.ExtractionResult{
		ExpenseID:    req.ExpenseID,
		AttachmentID: req.AttachmentID,
		RequestID:    req.RequestID,
	}

	data, err := w.extract(processCtx, req)
	if err != nil {
		w.failed.Add(1)
		w.logger.Error("Receipt extraction failed",
			zap.String("expense_id", req.ExpenseID),
			zap.String("attachment_id", req.AttachmentID),
			zap.Error(err))
		result.Error = err.Error()
	} else {
		w.processed.Add(1)
		result.Success = true
		result.Data = data
	}

	w.mu.RLock()
	completer := w.completer
	w.mu.RUnlock()

	if _, err := completer.CompleteExtraction(processCtx, result); err != nil {
		w.logger.Error("Failed to record extraction result",
			zap.String("expense_id", req.ExpenseID),
			zap.String("attachment_id", req.AttachmentID),
			zap.String("request_id", req.RequestID),
			zap.Error(err))
	}
}

func (w *ExtractionWorker) extract(ctx context.Context, req entity.ExtractionRequest) (*entity.ExtractedData, error) {
	content, err := w.storage.Read(ctx, req.FileRef)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.FileRef, err)
	}

	data, err := w.extractor.Extract(ctx, content, req.FileType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrExtraction, err)
	}
	return data, nil
}
