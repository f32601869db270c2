package entity

import "time"

// OverallStatus summarises the distribution of verdict statuses in a batch
type OverallStatus string

const (
	OverallAllFullyReimbursed  OverallStatus = "All Fully Reimbursed"
	OverallAllDeclined         OverallStatus = "All Declined"
	OverallMixedStatus         OverallStatus = "Mixed Status"
	OverallNoInvoicesProcessed OverallStatus = "No Invoices Processed"
)

// StatusCounts tallies verdicts per status. Statuses outside the three known
// values are counted in none of the buckets.
type StatusCounts struct {
	FullyReimbursed     int `json:"fully_reimbursed"`
	PartiallyReimbursed int `json:"partially_reimbursed"`
	Declined            int `json:"declined"`
}

// BatchResult is the aggregate outcome of one policy + archive submission
type BatchResult struct {
	ID            string           `json:"batch_id"`
	OverallStatus OverallStatus    `json:"overall_status"`
	StatusCounts  StatusCounts     `json:"status_counts"`
	Analyses      []InvoiceVerdict `json:"invoice_analyses"`
	CreatedAt     time.Time        `json:"created_at"`
}

// BatchRecord is a persisted batch together with the names of its uploads
type BatchRecord struct {
	Result          BatchResult
	PolicyFilename  string
	ArchiveFilename string
}

// CountStatuses tallies verdicts by status
func CountStatuses(verdicts []InvoiceVerdict) StatusCounts {
	var counts StatusCounts
	for _, v := range verdicts {
		switch v.Status {
		case StatusFullyReimbursed:
			counts.FullyReimbursed++
		case StatusPartiallyReimbursed:
			counts.PartiallyReimbursed++
		case StatusDeclined:
			counts.Declined++
		}
	}
	return counts
}

// ComputeOverallStatus derives the batch label from the verdict statuses
func ComputeOverallStatus(verdicts []InvoiceVerdict) OverallStatus {
	if len(verdicts) == 0 {
		return OverallNoInvoicesProcessed
	}

	counts := CountStatuses(verdicts)
	switch len(verdicts) {
	case counts.FullyReimbursed:
		return OverallAllFullyReimbursed
	case counts.Declined:
		return OverallAllDeclined
	default:
		return OverallMixedStatus
	}
}

// NewBatchResult assembles a result, filling in counts and overall status
func NewBatchResult(id string, verdicts []InvoiceVerdict, createdAt time.Time) *BatchResult {
	if verdicts == nil {
		verdicts = []InvoiceVerdict{}
	}
	return &BatchResult{
		ID:            id,
		OverallStatus: ComputeOverallStatus(verdicts),
		StatusCounts:  CountStatuses(verdicts),
		Analyses:      verdicts,
		CreatedAt:     createdAt,
	}
}

// TotalReimbursable sums the reimbursable amounts across all verdicts
func (r *BatchResult) TotalReimbursable() int {
	total := 0
	for _, v := range r.Analyses {
		total += v.ReimbursableAmount
	}
	return total
}
