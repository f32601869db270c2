package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no batch exists with the requested ID
var ErrNotFound = port.ErrBatchNotFound

const defaultListLimit = 50

// BatchRepository implements port.BatchRepository on SQLite
type BatchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *sql.DB, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores a completed batch. Verdicts are kept as a JSON document.
func (r *BatchRepository) Save(ctx context.Context, record *entity.BatchRecord) error {
	analyses, err := json.Marshal(record.Result.Analyses)
	if err != nil {
		return fmt.Errorf("failed to encode analyses: %w", err)
	}

	query := `
		INSERT INTO batches (
			id, overall_status, fully_reimbursed, partially_reimbursed, declined,
			total_reimbursable, analyses_json, policy_filename, archive_filename, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result := record.Result
	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		result.ID,
		string(result.OverallStatus),
		result.StatusCounts.FullyReimbursed,
		result.StatusCounts.PartiallyReimbursed,
		result.StatusCounts.Declined,
		result.TotalReimbursable(),
		string(analyses),
		record.PolicyFilename,
		record.ArchiveFilename,
		result.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save batch", zap.String("batch_id", result.ID), zap.Error(err))
		return fmt.Errorf("failed to save batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by its ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*entity.BatchRecord, error) {
	query := `
		SELECT id, overall_status, fully_reimbursed, partially_reimbursed, declined,
			analyses_json, policy_filename, archive_filename, created_at
		FROM batches
		WHERE id = ?
	`

	record, err := scanBatch(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get batch", zap.String("batch_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return record, nil
}

// List returns batches, newest first
func (r *BatchRepository) List(ctx context.Context, limit, offset int) ([]*entity.BatchRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, overall_status, fully_reimbursed, partially_reimbursed, declined,
			analyses_json, policy_filename, archive_filename, created_at
		FROM batches
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list batches", zap.Error(err))
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	records := []*entity.BatchRecord{}
	for rows.Next() {
		record, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*entity.BatchRecord, error) {
	var (
		record    entity.BatchRecord
		status    string
		analyses  string
		createdAt time.Time
	)
	err := row.Scan(
		&record.Result.ID,
		&status,
		&record.Result.StatusCounts.FullyReimbursed,
		&record.Result.StatusCounts.PartiallyReimbursed,
		&record.Result.StatusCounts.Declined,
		&analyses,
		&record.PolicyFilename,
		&record.ArchiveFilename,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	record.Result.OverallStatus = entity.OverallStatus(status)
	record.Result.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(analyses), &record.Result.Analyses); err != nil {
		return nil, fmt.Errorf("failed to decode analyses for batch %s: %w", record.Result.ID, err)
	}
	if record.Result.Analyses == nil {
		record.Result.Analyses = []entity.InvoiceVerdict{}
	}

	return &record, nil
}

// getExecutor returns the transaction stored in ctx, if any, else the pool
func (r *BatchRepository) getExecutor(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type contextKey string

const txKey = contextKey("tx")

// WithTx returns a context that routes repository calls through tx
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// Verify interface compliance
var _ port.BatchRepository = (*BatchRepository)(nil)
