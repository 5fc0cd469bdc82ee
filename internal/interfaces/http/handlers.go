package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-flow/internal/application/service"
	"github.com/garyjia/expense-flow/internal/domain/entity"
	"github.com/garyjia/expense-flow/internal/domain/query"
	"github.com/garyjia/expense-flow/internal/infrastructure/external/abbyy"
)

// UserIDHeader carries the acting user's identity
const UserIDHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	config   ServerConfig
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, config ServerConfig, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		config:   config,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// CreateExpenseRequest is the body of POST /api/expenses
type CreateExpenseRequest struct {
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	// Draft saves without submitting
	Draft bool `json:"draft"`
}

// RejectRequest is the body of POST /api/expenses/:id/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// SettleRequest is the body of POST /api/expenses/:id/settle
type SettleRequest struct {
	Reference string `json:"reference"`
}

// ExpenseResponse renders an expense with wire-formatted date and amount
type ExpenseResponse struct {
	*entity.Expense
	Amount           string   `json:"amount"`
	Date             string   `json:"date"`
	PermittedActions []string `json:"permittedActions,omitempty"`
}

// AttachmentResponse is returned after an upload
type AttachmentResponse struct {
	Expense    ExpenseResponse    `json:"expense"`
	Attachment *entity.Attachment `json:"attachment"`
}

func toExpenseResponse(e *entity.Expense) ExpenseResponse {
	return ExpenseResponse{
		Expense: e,
		Amount:  e.Amount.StringFixed(2),
		Date:    e.Date.Format(entity.DateLayout),
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.services.Health != nil {
		healthy, components := h.services.Health(c.Request.Context())
		resp.Components = components
		if !healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}

// ListCategories handles GET /api/categories
func (h *Handlers) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.services.Query.Categories()})
}

// ListExpenses handles GET /api/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	sortBy, err := query.ParseSortBy(c.Query("sort_by"))
	if err != nil {
		h.fail(c, "list expenses", err)
		return
	}
	order, err := query.ParseOrder(c.Query("order"))
	if err != nil {
		h.fail(c, "list expenses", err)
		return
	}

	req := service.ListRequest{
		Criteria: query.Criteria{
			SearchTerm: c.Query("search"),
			Status:     c.Query("status"),
			Category:   c.Query("category"),
		},
		SortBy: sortBy,
		Order:  order,
	}

	expenses, err := h.services.Query.List(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "list expenses", err)
		return
	}

	items := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, toExpenseResponse(e))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// CreateExpense handles POST /api/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "create expense", fmt.Errorf("%w: invalid request body: %v", entity.ErrValidation, err))
		return
	}

	draft := entity.ExpenseDraft{
		Title:       req.Title,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		SubmittedBy: c.GetHeader(UserIDHeader),
	}
	if req.Date != "" {
		date, err := time.Parse(entity.DateLayout, req.Date)
		if err != nil {
			h.fail(c, "create expense", fmt.Errorf("%w: date must be YYYY-MM-DD", entity.ErrValidation))
			return
		}
		draft.Date = date
	}

	var (
		expense *entity.Expense
		err     error
	)
	if req.Draft {
		expense, err = h.services.Lifecycle.SaveDraft(c.Request.Context(), draft)
	} else {
		expense, err = h.services.Lifecycle.Submit(c.Request.Context(), draft)
	}
	if err != nil {
		h.fail(c, "create expense", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toExpenseResponse(expense)})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	expense, err := h.services.Lifecycle.Get(ctx, id)
	if err != nil {
		h.fail(c, "get expense", err)
		return
	}

	triggers, err := h.services.Lifecycle.PermittedActions(ctx, id)
	if err != nil {
		h.fail(c, "get expense", err)
		return
	}

	resp := toExpenseResponse(expense)
	resp.PermittedActions = make([]string, 0, len(triggers))
	for _, t := range triggers {
		resp.PermittedActions = append(resp.PermittedActions, string(t))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// SubmitDraft handles POST /api/expenses/:id/submit
func (h *Handlers) SubmitDraft(c *gin.Context) {
	expense, err := h.services.Lifecycle.SubmitDraft(c.Request.Context(), c.Param("id"))
	h.respondExpense(c, "submit draft", expense, err)
}

// StartProcessing handles POST /api/expenses/:id/processing
func (h *Handlers) StartProcessing(c *gin.Context) {
	expense, err := h.services.Lifecycle.StartProcessing(c.Request.Context(), c.Param("id"), c.GetHeader(UserIDHeader))
	h.respondExpense(c, "start processing", expense, err)
}

// ApproveExpense handles POST /api/expenses/:id/approve
func (h *Handlers) ApproveExpense(c *gin.Context) {
	expense, err := h.services.Lifecycle.Approve(c.Request.Context(), c.Param("id"), c.GetHeader(UserIDHeader))
	h.respondExpense(c, "approve expense", expense, err)
}

// RejectExpense handles POST /api/expenses/:id/reject
func (h *Handlers) RejectExpense(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "reject expense", fmt.Errorf("%w: invalid request body: %v", entity.ErrValidation, err))
		return
	}

	expense, err := h.services.Lifecycle.Reject(c.Request.Context(), c.Param("id"), c.GetHeader(UserIDHeader), req.Reason)
	h.respondExpense(c, "reject expense", expense, err)
}

// SettleExpense handles POST /api/expenses/:id/settle. The body is optional.
func (h *Handlers) SettleExpense(c *gin.Context) {
	var req SettleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			h.fail(c, "settle expense", fmt.Errorf("%w: invalid request body: %v", entity.ErrValidation, err))
			return
		}
	}

	expense, err := h.services.Lifecycle.Settle(c.Request.Context(), c.Param("id"), c.GetHeader(UserIDHeader), req.Reference)
	h.respondExpense(c, "settle expense", expense, err)
}

// UploadAttachment handles POST /api/expenses/:id/attachments (multipart field "file")
func (h *Handlers) UploadAttachment(c *gin.Context) {
	if h.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.fail(c, "upload attachment", fmt.Errorf("%w: file is required: %v", entity.ErrValidation, err))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.fail(c, "upload attachment", err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.fail(c, "upload attachment", err)
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(content)
	}

	expense, attachment, err := h.services.Extraction.AddAttachment(c.Request.Context(), c.Param("id"), entity.AttachmentUpload{
		Name:      header.Filename,
		MediaType: mediaType,
		Content:   content,
	})
	if err != nil {
		h.fail(c, "upload attachment", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: AttachmentResponse{
		Expense:    toExpenseResponse(expense),
		Attachment: attachment,
	}})
}

// RequestExtraction handles POST /api/expenses/:id/attachments/:attachmentId/extract
func (h *Handlers) RequestExtraction(c *gin.Context) {
	expense, err := h.services.Extraction.RequestExtraction(c.Request.Context(), c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		h.fail(c, "request extraction", err)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: toExpenseResponse(expense)})
}

// ExtractionCallback handles POST /api/extraction/callback from the extraction gateway
func (h *Handlers) ExtractionCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, "extraction callback", fmt.Errorf("%w: unreadable body: %v", entity.ErrValidation, err))
		return
	}

	if h.config.CallbackSecret != "" && !abbyy.Verify(h.config.CallbackSecret, body, c.GetHeader(abbyy.SignatureHeader)) {
		h.logger.Error("Extraction callback signature mismatch", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid signature"})
		return
	}

	var result entity.ExtractionResult
	if err := json.Unmarshal(body, &result); err != nil {
		h.fail(c, "extraction callback", fmt.Errorf("%w: invalid callback payload: %v", entity.ErrValidation, err))
		return
	}

	expense, err := h.services.Extraction.CompleteExtraction(c.Request.Context(), result)
	if err != nil {
		h.fail(c, "extraction callback", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(expense)})
}

// GetAnalytics handles GET /api/analytics
func (h *Handlers) GetAnalytics(c *gin.Context) {
	summary, err := h.services.Analytics.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, "analytics summary", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ExportAnalytics handles GET /api/analytics/export and streams an xlsx workbook
func (h *Handlers) ExportAnalytics(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.services.Analytics.Export(c.Request.Context(), &buf); err != nil {
		h.fail(c, "analytics export", err)
		return
	}

	filename := fmt.Sprintf("expense-analytics-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, excelContentType, buf.Bytes())
}

// GetProcessingSummary handles GET /api/processing
func (h *Handlers) GetProcessingSummary(c *gin.Context) {
	summary, err := h.services.Extraction.ProcessingSummary(c.Request.Context())
	if err != nil {
		h.fail(c, "processing summary", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

func (h *Handlers) respondExpense(c *gin.Context, op string, expense *entity.Expense, err error) {
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(expense)})
}
