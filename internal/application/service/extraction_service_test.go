package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-flow/internal/application/dispatcher"
	"github.com/garyjia/expense-flow/internal/application/workflow"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/event"
	"github.com/garyjia/expense-flow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-flow/internal/testfixture"
)

type extractionHarness struct {
	svc     ExtractionService
	store   *memory.Store
	client  *mockExtractionClient
	storage *mockFileStorage
	rec     *recordingDispatcher
}

func newExtractionHarness(opts ...ExtractionOption) *extractionHarness {
	h := &extractionHarness{
		store:   memory.NewStore(testfixture.Expenses()...),
		client:  &mockExtractionClient{},
		storage: newMockFileStorage(),
		rec:     &recordingDispatcher{},
	}
	base := []ExtractionOption{
		WithExtractionClock(tickingClock(testfixture.Now)),
		WithExtractionIDs(sequence("id")),
		WithExtractionDispatcher(h.rec),
	}
	h.svc = NewExtractionService(h.store, h.client, h.storage, &mockLogger{}, append(base, opts...)...)
	return h
}

func receiptData(vendor, amount string, confidence float64) *entity.ExtractedData {
	a := decimal.RequireFromString(amount)
	return &entity.ExtractedData{
		Vendor:     vendor,
		Amount:     &a,
		Currency:   "USD",
		Date:       "2024-01-20",
		Confidence: &confidence,
	}
}

func TestExtractionService_RequestExtraction(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	expense, err := h.svc.RequestExtraction(ctx, testfixture.HotelStayID, "att3")
	require.NoError(t, err)
	require.NotNil(t, expense.ProcessingStatus)
	assert.Equal(t, entity.ProcessingExtracting, *expense.ProcessingStatus)

	_, att := expense.Attachment("att3")
	require.NotNil(t, att.AbbyySentAt)
	assert.Nil(t, att.AbbyyProcessedAt)
	assert.Equal(t, "id-1", att.ExtractionRequestID)

	requests := h.client.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, entity.ExtractionRequest{
		ExpenseID:    testfixture.HotelStayID,
		AttachmentID: "att3",
		RequestID:    "id-1",
		FileRef:      "receipts/hotel_invoice.pdf",
		FileName:     "hotel_invoice.pdf",
		FileType:     "application/pdf",
	}, requests[0])
	assert.Equal(t, []event.Type{event.TypeExtractionRequested}, h.rec.Types())
}

func TestExtractionService_RequestExtractionErrors(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	_, err := h.svc.RequestExtraction(ctx, "missing", "att3")
	assert.True(t, errors.Is(err, entity.ErrNotFound))

	_, err = h.svc.RequestExtraction(ctx, testfixture.HotelStayID, "att-missing")
	assert.True(t, errors.Is(err, entity.ErrNotFound))

	assert.Empty(t, h.client.Requests())
}

func TestExtractionService_CompleteSuccess(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	_, err := h.svc.RequestExtraction(ctx, testfixture.HotelStayID, "att3")
	require.NoError(t, err)

	expense, err := h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID:    testfixture.HotelStayID,
		AttachmentID: "att3",
		RequestID:    "id-1",
		Success:      true,
		Data:         receiptData("Grand Hotel", "342.00", 0.91),
	})
	require.NoError(t, err)
	require.NotNil(t, expense.ProcessingStatus)
	assert.Equal(t, entity.ProcessingCompleted, *expense.ProcessingStatus)

	_, att := expense.Attachment("att3")
	require.NotNil(t, att.AbbyyProcessedAt)
	assert.True(t, att.AbbyyProcessedAt.After(*att.AbbyySentAt))
	assert.Empty(t, att.ExtractionError)

	require.NotNil(t, expense.ExtractedData)
	assert.Equal(t, "att3", expense.ExtractedData.AttachmentID)
	assert.Equal(t, "Grand Hotel", expense.ExtractedData.Vendor)
	assert.False(t, expense.ExtractedData.ExtractedAt.IsZero())

	// the same completion again is stale
	_, err = h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID:    testfixture.HotelStayID,
		AttachmentID: "att3",
		RequestID:    "id-1",
		Success:      true,
		Data:         receiptData("Other", "1.00", 0.5),
	})
	assert.True(t, errors.Is(err, entity.ErrStaleCallback))

	stored, err := h.store.Get(ctx, testfixture.HotelStayID)
	require.NoError(t, err)
	assert.Equal(t, "Grand Hotel", stored.ExtractedData.Vendor)

	assert.Equal(t, []event.Type{event.TypeExtractionRequested, event.TypeExtractionCompleted}, h.rec.Types())
}

func TestExtractionService_CompleteFailure(t *testing.T) {
	h := newExtractionHarness()

	expense, err := h.svc.CompleteExtraction(context.Background(), entity.ExtractionResult{
		ExpenseID:    testfixture.OfficeSuppliesID,
		AttachmentID: "att2",
		RequestID:    "req-att2",
		Success:      false,
		Error:        "unreadable scan",
	})
	require.NoError(t, err)
	require.NotNil(t, expense.ProcessingStatus)
	assert.Equal(t, entity.ProcessingFailed, *expense.ProcessingStatus)
	assert.Nil(t, expense.ExtractedData)

	_, att := expense.Attachment("att2")
	assert.Equal(t, "unreadable scan", att.ExtractionError)
	assert.NotNil(t, att.AbbyyProcessedAt)
}

func TestExtractionService_StaleRequestID(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	_, err := h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID:    testfixture.OfficeSuppliesID,
		AttachmentID: "att2",
		RequestID:    "req-older",
		Success:      true,
		Data:         receiptData("Office Depot", "89.99", 0.8),
	})
	assert.True(t, errors.Is(err, entity.ErrStaleCallback))

	stored, err := h.store.Get(ctx, testfixture.OfficeSuppliesID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessingExtracting, *stored.ProcessingStatus)
	assert.Equal(t, int64(1), stored.Version)
}

func TestExtractionService_CompleteWithoutRequest(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	// att1 finished long ago, att3 was never sent
	for _, tc := range []struct{ expenseID, attachmentID string }{
		{testfixture.ClientDinnerID, "att1"},
		{testfixture.HotelStayID, "att3"},
	} {
		_, err := h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
			ExpenseID:    tc.expenseID,
			AttachmentID: tc.attachmentID,
			Success:      false,
			Error:        "late",
		})
		assert.True(t, errors.Is(err, entity.ErrStaleCallback), tc.attachmentID)
	}
}

func TestExtractionService_CompleteValidation(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	_, err := h.svc.CompleteExtraction(ctx, entity.ExtractionResult{AttachmentID: "att2"})
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, err = h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID: testfixture.OfficeSuppliesID, AttachmentID: "att2", Success: true,
	})
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, err = h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID:    testfixture.OfficeSuppliesID,
		AttachmentID: "att2",
		Success:      true,
		Data:         receiptData("Office Depot", "89.99", 1.5),
	})
	assert.True(t, errors.Is(err, entity.ErrValidation))
}

func TestExtractionService_DispatchFailureIsAbsorbed(t *testing.T) {
	h := newExtractionHarness()
	h.client.submitFunc = func(context.Context, entity.ExtractionRequest) error {
		return errors.New("connection refused")
	}

	expense, err := h.svc.RequestExtraction(context.Background(), testfixture.HotelStayID, "att3")
	require.NoError(t, err)
	require.NotNil(t, expense.ProcessingStatus)
	assert.Equal(t, entity.ProcessingFailed, *expense.ProcessingStatus)

	_, att := expense.Attachment("att3")
	assert.Contains(t, att.ExtractionError, "connection refused")
	assert.Equal(t, []event.Type{event.TypeExtractionRequested, event.TypeExtractionCompleted}, h.rec.Types())
}

func TestExtractionService_RerequestAfterCompletion(t *testing.T) {
	fixed := time.Date(2024, 1, 26, 0, 0, 0, 0, time.UTC)
	h := newExtractionHarness(WithExtractionClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, err := h.svc.RequestExtraction(ctx, testfixture.HotelStayID, "att3")
	require.NoError(t, err)
	_, err = h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
		ExpenseID: testfixture.HotelStayID, AttachmentID: "att3", Success: false, Error: "blurry",
	})
	require.NoError(t, err)

	// a frozen clock still yields strictly increasing stamps
	expense, err := h.svc.RequestExtraction(ctx, testfixture.HotelStayID, "att3")
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessingExtracting, *expense.ProcessingStatus)

	_, att := expense.Attachment("att3")
	assert.True(t, att.AbbyySentAt.After(*att.AbbyyProcessedAt))
	assert.Empty(t, att.ExtractionError)
	assert.Equal(t, "id-2", att.ExtractionRequestID)
}

func TestExtractionService_ConcurrentCompletions(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, stale := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CompleteExtraction(ctx, entity.ExtractionResult{
				ExpenseID:    testfixture.OfficeSuppliesID,
				AttachmentID: "att2",
				RequestID:    "req-att2",
				Success:      true,
				Data:         receiptData("Office Depot", "89.99", 0.9),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, entity.ErrStaleCallback) {
				stale++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, stale)

	stored, err := h.store.Get(ctx, testfixture.OfficeSuppliesID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestExtractionService_AddAttachment(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	expense, att, err := h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{
		Name:      "../../minibar.PNG",
		MediaType: "Image/PNG",
		Content:   []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", att.ID)
	assert.Equal(t, "minibar.PNG", att.Name)
	assert.Equal(t, "image/png", att.MediaType)
	assert.Equal(t, int64(9), att.Size)
	assert.Equal(t, "expenses/3/id-1_minibar.PNG", att.StorageRef)
	assert.Nil(t, att.AbbyySentAt)
	assert.True(t, h.storage.Exists(ctx, att.StorageRef))

	assert.Len(t, expense.Attachments, 2)
	assert.Equal(t, entity.ProcessingPending, *expense.ProcessingStatus)
	assert.Empty(t, h.client.Requests())
	assert.Equal(t, []event.Type{event.TypeAttachmentAdded}, h.rec.Types())
}

func TestExtractionService_AddAttachmentAutoRequest(t *testing.T) {
	h := newExtractionHarness(WithAutoRequest(true))
	ctx := context.Background()

	expense, att, err := h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{
		Name: "taxi.jpg", MediaType: "image/jpeg", Content: []byte("jpg"),
	})
	require.NoError(t, err)
	require.NotNil(t, att.AbbyySentAt)
	assert.Equal(t, entity.ProcessingExtracting, *expense.ProcessingStatus)
	require.Len(t, h.client.Requests(), 1)
	assert.Equal(t, att.ID, h.client.Requests()[0].AttachmentID)

	// spreadsheets are stored but never sent
	_, sheet, err := h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{
		Name: "totals.csv", MediaType: "text/csv", Content: []byte("a,b"),
	})
	require.NoError(t, err)
	assert.Nil(t, sheet.AbbyySentAt)
	assert.Len(t, h.client.Requests(), 1)

	_, err = h.svc.RequestExtraction(ctx, testfixture.HotelStayID, sheet.ID)
	assert.True(t, errors.Is(err, entity.ErrValidation))
}

func TestExtractionService_AddAttachmentErrors(t *testing.T) {
	h := newExtractionHarness()
	ctx := context.Background()

	_, _, err := h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{Name: "a.pdf"})
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, _, err = h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{Name: " ", Content: []byte("x")})
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, _, err = h.svc.AddAttachment(ctx, testfixture.SoftwareLicenseID, entity.AttachmentUpload{Name: "a.pdf", Content: []byte("x")})
	assert.True(t, errors.Is(err, entity.ErrTransition))

	_, _, err = h.svc.AddAttachment(ctx, "missing", entity.AttachmentUpload{Name: "a.pdf", Content: []byte("x")})
	assert.True(t, errors.Is(err, entity.ErrNotFound))

	h.storage.saveFunc = func(context.Context, string, []byte) error { return errors.New("disk full") }
	_, _, err = h.svc.AddAttachment(ctx, testfixture.HotelStayID, entity.AttachmentUpload{Name: "a.pdf", Content: []byte("x")})
	assert.True(t, errors.Is(err, entity.ErrPersistence))

	stored, err := h.store.Get(ctx, testfixture.HotelStayID)
	require.NoError(t, err)
	assert.Len(t, stored.Attachments, 1)
}

func TestExtractionService_ProcessingSummary(t *testing.T) {
	h := newExtractionHarness()

	summary, err := h.svc.ProcessingSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, map[entity.ProcessingStatus]int{
		entity.ProcessingPending:    1,
		entity.ProcessingExtracting: 1,
		entity.ProcessingCompleted:  2,
		entity.ProcessingFailed:     0,
	}, summary.Counts)
}

func TestExtractionService_RequestExtractionStartsProcessingBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name       string
		mode       workflow.ProcessingMode
		wantStatus entity.Status
		wantEvents int
	}{
		{"on_extraction", workflow.ProcessingOnExtraction, entity.StatusProcessing, 1},
		{"manual", workflow.ProcessingManual, entity.StatusSubmitted, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fresh := testfixture.ByID(testfixture.HotelStayID)
			fresh.ID = "5"
			fresh.Status = entity.StatusSubmitted
			store := memory.NewStore(append(testfixture.Expenses(), fresh)...)

			d := dispatcher.NewDispatcher()
			var mu sync.Mutex
			var started []*event.Event
			d.Subscribe(event.TypeExpenseProcessingStarted, func(_ context.Context, evt *event.Event) error {
				mu.Lock()
				defer mu.Unlock()
				started = append(started, evt)
				return nil
			})

			engine := workflow.NewEngine(store, workflow.WithDispatcher(d), workflow.WithProcessingMode(tc.mode))
			client := &mockExtractionClient{submitFunc: func(context.Context, entity.ExtractionRequest) error {
				return errors.New("circuit breaker is open")
			}}
			svc := NewExtractionService(store, client, newMockFileStorage(), &mockLogger{},
				WithExtractionClock(tickingClock(testfixture.Now)),
				WithExtractionIDs(sequence("req")),
				WithExtractionDispatcher(d),
				WithProcessingStarter(engine),
			)

			expense, err := svc.RequestExtraction(ctx, "5", "att3")
			require.NoError(t, err)
			require.NoError(t, d.Close())

			stored, err := store.Get(ctx, "5")
			require.NoError(t, err)
			assert.Equal(t, expense.Version, stored.Version)
			assert.Equal(t, tc.wantStatus, stored.Status)
			require.NotNil(t, stored.ProcessingStatus)
			assert.Equal(t, entity.ProcessingFailed, *stored.ProcessingStatus)
			_, att := stored.Attachment("att3")
			require.NotNil(t, att.AbbyyProcessedAt)
			assert.Contains(t, att.ExtractionError, "circuit breaker is open")

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, started, tc.wantEvents)
			if tc.wantEvents > 0 {
				assert.Equal(t, "5", started[0].ExpenseID)
				assert.Equal(t, "system", started[0].GetPayloadString(event.KeyActor))
			}
		})
	}
}
