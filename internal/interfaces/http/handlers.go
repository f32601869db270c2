package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-reimbursement/internal/application/service"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

const (
	policyField  = "policy_file"
	archiveField = "invoice_zip"
	formatXLSX   = "xlsx"

	msgInternalError   = "Internal server error"
	msgHistoryDisabled = "Batch history is disabled"
	msgBatchNotFound   = "Batch not found"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	batchService   service.BatchService
	historyService service.HistoryService
	renderer       ReportRenderer
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance. maxUploadBytes <= 0 disables the limit.
func NewHandlers(
	batchService service.BatchService,
	historyService service.HistoryService,
	renderer ReportRenderer,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	return &Handlers{
		batchService:   batchService,
		historyService: historyService,
		renderer:       renderer,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// BatchRecordResponse is a recorded batch plus its upload names
type BatchRecordResponse struct {
	entity.BatchResult
	PolicyFilename  string `json:"policy_filename"`
	ArchiveFilename string `json:"archive_filename"`
}

// BatchListResponse wraps a page of recorded batches
type BatchListResponse struct {
	Batches []BatchRecordResponse `json:"batches"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// ListBatchesRequest represents query parameters for listing batches
type ListBatchesRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "invoice-reimbursement",
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// AnalyzeInvoices handles POST /analyze_invoices/
func (h *Handlers) AnalyzeInvoices(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			h.writeTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	policyFile, policyName, ok := h.openPart(c, policyField)
	if !ok {
		return
	}
	defer policyFile.Close()

	archiveFile, archiveName, ok := h.openPart(c, archiveField)
	if !ok {
		return
	}
	defer archiveFile.Close()

	result, err := h.batchService.Run(c.Request.Context(),
		service.Upload{Filename: policyName, Content: policyFile},
		service.Upload{Filename: archiveName, Content: archiveFile},
	)
	if err != nil {
		h.writeRunError(c, err)
		return
	}

	if c.Query("format") == formatXLSX {
		h.writeWorkbook(c, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// openPart opens a required multipart file field, writing a 400 when it is missing
func (h *Handlers) openPart(c *gin.Context, field string) (multipart.File, string, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		if isTooLarge(err) {
			h.writeTooLarge(c)
			return nil, "", false
		}
		h.logger.Warn("Missing upload field", "request_id", RequestIDFromContext(c), "field", field, "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: fmt.Sprintf("Missing required file field: %s", field)})
		return nil, "", false
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", "request_id", RequestIDFromContext(c), "field", field, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: msgInternalError})
		return nil, "", false
	}
	return file, header.Filename, true
}

func (h *Handlers) writeRunError(c *gin.Context, err error) {
	var inputErr *service.UserInputError
	switch {
	case errors.As(err, &inputErr):
		h.logger.Warn("Rejected batch", "request_id", RequestIDFromContext(c), "reason", inputErr.Message)
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: inputErr.Message})
	case isTooLarge(err):
		h.writeTooLarge(c)
	default:
		h.logger.Error("Batch processing failed", "request_id", RequestIDFromContext(c), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: msgInternalError})
	}
}

func (h *Handlers) writeTooLarge(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Detail: fmt.Sprintf("Upload exceeds the maximum allowed size of %d bytes.", h.maxUploadBytes),
	})
}

func (h *Handlers) writeWorkbook(c *gin.Context, result *entity.BatchResult) {
	data, err := h.renderer.Render(result)
	if err != nil {
		h.logger.Error("Failed to render report", "request_id", RequestIDFromContext(c), "batch_id", result.ID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: msgInternalError})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.renderer.Filename(result)))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ListBatches handles GET /batches
func (h *Handlers) ListBatches(c *gin.Context) {
	var req ListBatchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid query parameters"})
		return
	}

	records, err := h.historyService.ListBatches(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}

	resp := BatchListResponse{
		Batches: make([]BatchRecordResponse, 0, len(records)),
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	for _, r := range records {
		resp.Batches = append(resp.Batches, toBatchRecordResponse(r))
	}

	c.JSON(http.StatusOK, resp)
}

// GetBatch handles GET /batches/:id
func (h *Handlers) GetBatch(c *gin.Context) {
	record, err := h.historyService.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}

	if c.Query("format") == formatXLSX {
		h.writeWorkbook(c, &record.Result)
		return
	}

	c.JSON(http.StatusOK, toBatchRecordResponse(record))
}

func (h *Handlers) writeHistoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHistoryDisabled):
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: msgHistoryDisabled})
	case errors.Is(err, service.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: msgBatchNotFound})
	default:
		h.logger.Error("History lookup failed", "request_id", RequestIDFromContext(c), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: msgInternalError})
	}
}

func toBatchRecordResponse(r *entity.BatchRecord) BatchRecordResponse {
	return BatchRecordResponse{
		BatchResult:     r.Result,
		PolicyFilename:  r.PolicyFilename,
		ArchiveFilename: r.ArchiveFilename,
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
