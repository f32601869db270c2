package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"github.com/garyjia/invoice-reimbursement/internal/invoice"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Messages returned to the client for rejected uploads
const (
	MsgPolicyNotPDF      = "HR Policy file must be a PDF."
	MsgPolicyUnreadable  = "Could not extract text from HR Policy PDF. It might be empty or malformed."
	MsgNoInvoicePDFs     = "No PDF invoice files found in the provided ZIP archive."
	MsgArchiveNotZip     = "Invoice upload must be a valid ZIP archive."
	invoicesSubdirectory = "invoices"
	archiveFileName      = "invoices.zip"
)

// UserInputError reports a problem with the uploaded files. Its message is
// safe to echo back to the client.
type UserInputError struct {
	Message string
	Err     error
}

func (e *UserInputError) Error() string {
	return e.Message
}

func (e *UserInputError) Unwrap() error {
	return e.Err
}

func userInputError(msg string, err error) error {
	return &UserInputError{Message: msg, Err: err}
}

// Upload is one file received from the client
type Upload struct {
	Filename string
	Content  io.Reader
}

// BatchService runs a policy + invoice archive through the adjudication pipeline
type BatchService interface {
	Run(ctx context.Context, policy Upload, archive Upload) (*entity.BatchResult, error)
}

// BatchOption customises a BatchService
type BatchOption func(*batchServiceImpl)

// WithBatchRepository records every completed batch
func WithBatchRepository(repo port.BatchRepository) BatchOption {
	return func(s *batchServiceImpl) { s.batchRepo = repo }
}

// WithBatchNotifier announces every completed batch
func WithBatchNotifier(notifier port.BatchNotifier) BatchOption {
	return func(s *batchServiceImpl) { s.notifier = notifier }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) BatchOption {
	return func(s *batchServiceImpl) { s.now = now }
}

type batchServiceImpl struct {
	workspaces port.WorkspaceProvider
	extractor  port.TextExtractor
	unpacker   port.ArchiveUnpacker
	analyzer   port.InvoiceAnalyzer
	batchRepo  port.BatchRepository
	notifier   port.BatchNotifier
	now        func() time.Time
	logger     Logger
}

// NewBatchService creates a new BatchService
func NewBatchService(
	workspaces port.WorkspaceProvider,
	extractor port.TextExtractor,
	unpacker port.ArchiveUnpacker,
	analyzer port.InvoiceAnalyzer,
	logger Logger,
	opts ...BatchOption,
) BatchService {
	s := &batchServiceImpl{
		workspaces: workspaces,
		extractor:  extractor,
		unpacker:   unpacker,
		analyzer:   analyzer,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes one batch. Invoices are handled one at a time in archive
// order and a failure on one invoice never aborts the batch. The workspace is
// released on every return path.
func (s *batchServiceImpl) Run(ctx context.Context, policy Upload, archive Upload) (*entity.BatchResult, error) {
	batchID := uuid.NewString()

	ws, err := s.workspaces.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire workspace: %w", err)
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			s.logger.Error("Failed to release workspace", "batch_id", batchID, "error", relErr)
		}
	}()

	policyPath, err := ws.Save(policy.Filename, policy.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store policy upload: %w", err)
	}
	archivePath, err := ws.Save(archiveFileName, archive.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store invoice archive: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(policy.Filename), ".pdf") {
		return nil, userInputError(MsgPolicyNotPDF, nil)
	}

	policyText, err := s.extractor.ExtractFile(ctx, policyPath)
	if err != nil {
		if errors.Is(err, invoice.ErrExtraction) {
			return nil, userInputError(MsgPolicyUnreadable, err)
		}
		return nil, fmt.Errorf("failed to extract policy text: %w", err)
	}
	if strings.TrimSpace(policyText) == "" {
		return nil, userInputError(MsgPolicyUnreadable, nil)
	}

	invoicePaths, err := s.unpacker.UnpackFile(archivePath, ws.Path(invoicesSubdirectory))
	if err != nil {
		if errors.Is(err, invoice.ErrInvalidArchive) {
			return nil, userInputError(MsgArchiveNotZip, err)
		}
		return nil, fmt.Errorf("failed to unpack invoice archive: %w", err)
	}
	if len(invoicePaths) == 0 {
		return nil, userInputError(MsgNoInvoicePDFs, nil)
	}

	s.logger.Info("Processing invoice batch",
		"batch_id", batchID,
		"policy", policy.Filename,
		"invoice_count", len(invoicePaths))

	verdicts := make([]entity.InvoiceVerdict, 0, len(invoicePaths))
	for _, path := range invoicePaths {
		verdicts = append(verdicts, s.processInvoice(ctx, batchID, policyText, path))
	}

	result := entity.NewBatchResult(batchID, verdicts, s.now())

	s.logger.Info("Invoice batch completed",
		"batch_id", batchID,
		"overall_status", string(result.OverallStatus),
		"fully_reimbursed", result.StatusCounts.FullyReimbursed,
		"partially_reimbursed", result.StatusCounts.PartiallyReimbursed,
		"declined", result.StatusCounts.Declined)

	s.afterBatch(ctx, result, policy.Filename, archive.Filename)
	return result, nil
}

// processInvoice turns one extracted invoice into a verdict, converting every failure into a Declined verdict
func (s *batchServiceImpl) processInvoice(ctx context.Context, batchID, policyText, path string) entity.InvoiceVerdict {
	filename := filepath.Base(path)

	invoiceText, err := s.extractor.ExtractFile(ctx, path)
	if err != nil {
		s.logger.Warn("Invoice extraction failed", "batch_id", batchID, "invoice", filename, "error", err)
		return entity.NewErrorVerdict(filename, err)
	}
	if strings.TrimSpace(invoiceText) == "" {
		s.logger.Warn("Invoice has no readable text", "batch_id", batchID, "invoice", filename)
		return entity.NewDeclinedVerdict(filename, entity.ReasonNoReadableText)
	}

	verdict, err := s.analyzer.Analyze(ctx, policyText, filename, invoiceText)
	if err != nil {
		s.logger.Warn("Invoice analysis failed", "batch_id", batchID, "invoice", filename, "error", err)
		return entity.NewErrorVerdict(filename, err)
	}
	if verdict == nil {
		return entity.NewDeclinedVerdict(filename, entity.ReasonMissingFromModel)
	}
	return *verdict
}

// afterBatch records and announces a completed batch. Failures are logged only.
func (s *batchServiceImpl) afterBatch(ctx context.Context, result *entity.BatchResult, policyName, archiveName string) {
	if s.batchRepo != nil {
		record := &entity.BatchRecord{
			Result:          *result,
			PolicyFilename:  policyName,
			ArchiveFilename: archiveName,
		}
		if err := s.batchRepo.Save(ctx, record); err != nil {
			s.logger.Error("Failed to record batch", "batch_id", result.ID, "error", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBatch(ctx, result); err != nil {
			s.logger.Error("Failed to send batch notification", "batch_id", result.ID, "error", err)
		}
	}
}
