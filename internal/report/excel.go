package report

import (
	"fmt"

	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	SummarySheet  = "Summary"
	InvoicesSheet = "Invoices"

	// ContentType is the MIME type of rendered workbooks
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var invoiceHeaders = []string{"Invoice identifier", "Reimbursement Status", "Reimbursable Amount", "Reason"}

// Renderer turns batch results into XLSX workbooks
type Renderer struct {
	filenamePrefix string
	logger         *zap.Logger
}

// NewRenderer creates a renderer. filenamePrefix names downloaded workbooks.
func NewRenderer(filenamePrefix string, logger *zap.Logger) *Renderer {
	if filenamePrefix == "" {
		filenamePrefix = "reimbursement-report"
	}
	return &Renderer{filenamePrefix: filenamePrefix, logger: logger}
}

// Filename returns the attachment name for a batch workbook
func (r *Renderer) Filename(result *entity.BatchResult) string {
	return fmt.Sprintf("%s-%s.xlsx", r.filenamePrefix, result.ID)
}

// Render builds a workbook with a Summary sheet and one Invoices row per verdict
func (r *Renderer) Render(result *entity.BatchResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(InvoicesSheet); err != nil {
		return nil, fmt.Errorf("failed to create invoices sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, result, bold); err != nil {
		return nil, err
	}
	if err := writeInvoices(f, result, bold); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	r.logger.Info("Rendered batch report",
		zap.String("batch_id", result.ID),
		zap.Int("rows", len(result.Analyses)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, result *entity.BatchResult, bold int) error {
	rows := [][2]interface{}{
		{"Batch ID", result.ID},
		{"Overall Status", string(result.OverallStatus)},
		{"Fully Reimbursed", result.StatusCounts.FullyReimbursed},
		{"Partially Reimbursed", result.StatusCounts.PartiallyReimbursed},
		{"Declined", result.StatusCounts.Declined},
		{"Invoices", len(result.Analyses)},
		{"Total Reimbursable", result.TotalReimbursable()},
	}
	if !result.CreatedAt.IsZero() {
		rows = append(rows, [2]interface{}{"Created At", result.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")})
	}

	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return fmt.Errorf("failed to style summary labels: %w", err)
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 22)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)
	return nil
}

func writeInvoices(f *excelize.File, result *entity.BatchResult, bold int) error {
	headers := make([]interface{}, len(invoiceHeaders))
	for i, h := range invoiceHeaders {
		headers[i] = h
	}
	if err := setRow(f, InvoicesSheet, 1, headers...); err != nil {
		return err
	}

	row := 2
	for _, v := range result.Analyses {
		if err := setRow(f, InvoicesSheet, row, v.Identifier, string(v.Status), v.ReimbursableAmount, v.Reason); err != nil {
			return err
		}
		row++
	}

	if err := setRow(f, InvoicesSheet, row, "Total", "", result.TotalReimbursable()); err != nil {
		return err
	}

	if err := f.SetCellStyle(InvoicesSheet, "A1", "D1", bold); err != nil {
		return fmt.Errorf("failed to style invoice headers: %w", err)
	}
	totalRow := fmt.Sprintf("A%d", row)
	if err := f.SetCellStyle(InvoicesSheet, totalRow, fmt.Sprintf("C%d", row), bold); err != nil {
		return fmt.Errorf("failed to style total row: %w", err)
	}

	_ = f.SetColWidth(InvoicesSheet, "A", "A", 32)
	_ = f.SetColWidth(InvoicesSheet, "B", "B", 22)
	_ = f.SetColWidth(InvoicesSheet, "C", "C", 20)
	_ = f.SetColWidth(InvoicesSheet, "D", "D", 80)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
