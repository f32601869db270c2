package lark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error) {
	args := m.Called(ctx, receiveIDType, receiveID, text)
	return args.String(0), args.Error(1)
}

func sampleResult() *entity.BatchResult {
	return entity.NewBatchResult("batch-7", []entity.InvoiceVerdict{
		{Identifier: "a.pdf", Status: entity.StatusFullyReimbursed, ReimbursableAmount: 150, Reason: "ok"},
		{Identifier: "b.pdf", Status: entity.StatusDeclined, Reason: "no receipt"},
	}, time.Now())
}

func TestNotifyBatch_SendsSummaryToChat(t *testing.T) {
	sender := new(mockSender)
	n := NewNotifier(sender, "oc_123", zap.NewNop())
	result := sampleResult()

	sender.On("SendText", mock.Anything, "chat_id", "oc_123", FormatSummary(result)).
		Return("om_1", nil).Once()

	require.NoError(t, n.NotifyBatch(context.Background(), result))
	sender.AssertExpectations(t)
}

func TestNotifyBatch_PropagatesSendError(t *testing.T) {
	sender := new(mockSender)
	n := NewNotifier(sender, "oc_123", zap.NewNop())
	sendErr := errors.New("API error: code=230002, msg=bot not in chat")

	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", sendErr)

	err := n.NotifyBatch(context.Background(), sampleResult())
	assert.ErrorIs(t, err, sendErr)
	assert.Contains(t, err.Error(), "batch-7")
}

func TestNotifyBatch_RequiresChatID(t *testing.T) {
	sender := new(mockSender)
	n := NewNotifier(sender, "", zap.NewNop())

	assert.Error(t, n.NotifyBatch(context.Background(), sampleResult()))
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFormatSummary(t *testing.T) {
	text := FormatSummary(sampleResult())

	assert.Contains(t, text, "Invoice batch batch-7: Mixed Status")
	assert.Contains(t, text, "Fully Reimbursed: 1")
	assert.Contains(t, text, "Partially Reimbursed: 0")
	assert.Contains(t, text, "Declined: 1")
	assert.Contains(t, text, "Total reimbursable: 150")
}
