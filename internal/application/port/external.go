package port

import (
	"context"

	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

// InvoiceAnalyzer adjudicates one invoice against the policy text. It is the
// only seam to the external language model.
type InvoiceAnalyzer interface {
	Analyze(ctx context.Context, policyText, invoiceFilename, invoiceText string) (*entity.InvoiceVerdict, error)
}

// TextExtractor pulls plain text out of a PDF on disk
type TextExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// ArchiveUnpacker extracts invoice PDFs from a ZIP on disk
type ArchiveUnpacker interface {
	UnpackFile(archivePath, destination string) ([]string, error)
}

// BatchNotifier announces completed batches to an outside channel
type BatchNotifier interface {
	NotifyBatch(ctx context.Context, result *entity.BatchResult) error
}
