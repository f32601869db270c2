package port

import (
	"context"
	"errors"

	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

// ErrBatchNotFound is returned by BatchRepository lookups for unknown IDs
var ErrBatchNotFound = errors.New("batch not found")

// BatchRepository defines persistence operations for completed batches
type BatchRepository interface {
	Save(ctx context.Context, record *entity.BatchRecord) error
	GetByID(ctx context.Context, id string) (*entity.BatchRecord, error)
	List(ctx context.Context, limit, offset int) ([]*entity.BatchRecord, error)
}
