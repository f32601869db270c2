package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// ErrHistoryDisabled is returned when batch history is not configured
var ErrHistoryDisabled = errors.New("batch history is disabled")

// ErrBatchNotFound is returned when a batch ID is unknown
var ErrBatchNotFound = port.ErrBatchNotFound

// HistoryService exposes previously recorded batches
type HistoryService interface {
	ListBatches(ctx context.Context, limit, offset int) ([]*entity.BatchRecord, error)
	GetBatch(ctx context.Context, id string) (*entity.BatchRecord, error)
}

type historyServiceImpl struct {
	repo   port.BatchRepository
	logger Logger
}

// NewHistoryService creates a HistoryService. A nil repo yields a service
// that reports ErrHistoryDisabled for every call.
func NewHistoryService(repo port.BatchRepository, logger Logger) HistoryService {
	return &historyServiceImpl{repo: repo, logger: logger}
}

// ListBatches returns a page of batches, newest first. The page size is
// clamped to [1, 100] with a default of 20.
func (s *historyServiceImpl) ListBatches(ctx context.Context, limit, offset int) ([]*entity.BatchRecord, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryPageSize
	}
	if limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list batches", "error", err)
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return records, nil
}

// GetBatch returns one recorded batch
func (s *historyServiceImpl) GetBatch(ctx context.Context, id string) (*entity.BatchRecord, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrBatchNotFound) {
			s.logger.Error("Failed to get batch", "batch_id", id, "error", err)
		}
		return nil, err
	}
	return record, nil
}
