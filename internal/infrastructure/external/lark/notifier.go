package lark

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"go.uber.org/zap"
)

const receiveIDTypeChat = "chat_id"

type messageSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// Notifier posts a batch summary to a Lark group chat
type Notifier struct {
	sender messageSender
	chatID string
	logger *zap.Logger
}

// NewNotifier creates a notifier that reports to chatID
func NewNotifier(sender messageSender, chatID string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// NotifyBatch sends the overall status and per-status counts of a batch
func (n *Notifier) NotifyBatch(ctx context.Context, result *entity.BatchResult) error {
	if n.chatID == "" {
		return fmt.Errorf("lark chat id is not configured")
	}
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	messageID, err := n.sender.SendText(ctx, receiveIDTypeChat, n.chatID, FormatSummary(result))
	if err != nil {
		return fmt.Errorf("failed to notify batch %s: %w", result.ID, err)
	}

	n.logger.Info("Batch notification sent",
		zap.String("batch_id", result.ID),
		zap.String("message_id", messageID))
	return nil
}

// FormatSummary renders the chat text for a completed batch
func FormatSummary(result *entity.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice batch %s: %s\n", result.ID, result.OverallStatus)
	fmt.Fprintf(&b, "Invoices: %d\n", len(result.Analyses))
	fmt.Fprintf(&b, "Fully Reimbursed: %d\n", result.StatusCounts.FullyReimbursed)
	fmt.Fprintf(&b, "Partially Reimbursed: %d\n", result.StatusCounts.PartiallyReimbursed)
	fmt.Fprintf(&b, "Declined: %d\n", result.StatusCounts.Declined)
	fmt.Fprintf(&b, "Total reimbursable: %d", result.TotalReimbursable())
	return b.String()
}

// Verify interface compliance
var _ port.BatchNotifier = (*Notifier)(nil)
