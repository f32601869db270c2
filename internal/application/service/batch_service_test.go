package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reimbursement/internal/ai"
	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	"github.com/garyjia/invoice-reimbursement/internal/infrastructure/storage"
	"github.com/garyjia/invoice-reimbursement/internal/invoice"
)

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

// stubExtractor returns canned text keyed by file base name
type stubExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (s *stubExtractor) ExtractFile(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	if err, ok := s.errs[name]; ok {
		return "", err
	}
	return s.texts[name], nil
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, policyText, invoiceFilename, invoiceText string) (*entity.InvoiceVerdict, error) {
	args := m.Called(ctx, policyText, invoiceFilename, invoiceText)
	if fn, ok := args.Get(0).(func(context.Context, string, string, string) *entity.InvoiceVerdict); ok {
		return fn(ctx, policyText, invoiceFilename, invoiceText), args.Error(1)
	}
	v, _ := args.Get(0).(*entity.InvoiceVerdict)
	return v, args.Error(1)
}

type mockBatchRepo struct {
	saved      []*entity.BatchRecord
	err        error
	listLimit  int
	listOffset int
}

func (m *mockBatchRepo) Save(ctx context.Context, record *entity.BatchRecord) error {
	m.saved = append(m.saved, record)
	return m.err
}

func (m *mockBatchRepo) GetByID(ctx context.Context, id string) (*entity.BatchRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.saved {
		if r.Result.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", port.ErrBatchNotFound, id)
}

func (m *mockBatchRepo) List(ctx context.Context, limit, offset int) ([]*entity.BatchRecord, error) {
	m.listLimit, m.listOffset = limit, offset
	if m.err != nil {
		return nil, m.err
	}
	return m.saved, nil
}

type mockNotifier struct {
	results []*entity.BatchResult
}

func (m *mockNotifier) NotifyBatch(ctx context.Context, result *entity.BatchResult) error {
	m.results = append(m.results, result)
	return errors.New("lark unavailable")
}

func zipOf(t *testing.T, names ...string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("%PDF-1.4 " + name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type batchFixture struct {
	root      string
	extractor *stubExtractor
	analyzer  *mockAnalyzer
	service   BatchService
}

func newBatchFixture(t *testing.T, opts ...BatchOption) *batchFixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	root := t.TempDir()

	f := &batchFixture{
		root: root,
		extractor: &stubExtractor{
			texts: map[string]string{"policy.pdf": "Meals reimbursed up to $50/day"},
			errs:  map[string]error{},
		},
		analyzer: &mockAnalyzer{},
	}
	f.service = NewBatchService(
		storage.NewWorkspaceManager(root, logger),
		f.extractor,
		invoice.NewUnpacker(logger),
		f.analyzer,
		testLogger{},
		opts...,
	)
	return f
}

func (f *batchFixture) run(t *testing.T, policyName string, archive []byte) (*entity.BatchResult, error) {
	t.Helper()
	return f.service.Run(context.Background(),
		Upload{Filename: policyName, Content: strings.NewReader("%PDF-1.4 policy")},
		Upload{Filename: "invoices.zip", Content: bytes.NewReader(archive)},
	)
}

func assertWorkspaceReleased(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace directories should be removed")
}

func TestBatchService_Run_MealScenario(t *testing.T) {
	f := newBatchFixture(t)
	f.extractor.texts["meal.pdf"] = "Meal: $80"

	want := &entity.InvoiceVerdict{
		Identifier:         "meal.pdf",
		Status:             entity.StatusPartiallyReimbursed,
		ReimbursableAmount: 50,
		Reason:             "Exceeds $50/day meal limit",
	}
	f.analyzer.On("Analyze", mock.Anything, "Meals reimbursed up to $50/day", "meal.pdf", "Meal: $80").Return(want, nil)

	result, err := f.run(t, "policy.pdf", zipOf(t, "meal.pdf"))

	require.NoError(t, err)
	require.Len(t, result.Analyses, 1)
	assert.Equal(t, *want, result.Analyses[0])
	assert.Equal(t, entity.OverallMixedStatus, result.OverallStatus)
	assert.NotEmpty(t, result.ID)
	f.analyzer.AssertExpectations(t)
	assertWorkspaceReleased(t, f.root)
}

func TestBatchService_Run_OneVerdictPerPDFEntry(t *testing.T) {
	f := newBatchFixture(t)
	names := []string{"a.pdf", "nested/b.PDF", "c.pdf"}
	for _, n := range names {
		f.extractor.texts[filepath.Base(n)] = "Taxi: $20"
	}
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, policyText, filename, invoiceText string) *entity.InvoiceVerdict {
			return &entity.InvoiceVerdict{Identifier: filename, Status: entity.StatusFullyReimbursed, ReimbursableAmount: 20, Reason: "Clause 1"}
		}, nil)

	archive := zipOf(t, "a.pdf", "__MACOSX/._a.pdf", "notes.txt", "nested/b.PDF", "c.pdf")
	result, err := f.run(t, "policy.pdf", archive)

	require.NoError(t, err)
	require.Len(t, result.Analyses, len(names))
	assert.Equal(t, "a.pdf", result.Analyses[0].Identifier)
	assert.Equal(t, "b.PDF", result.Analyses[1].Identifier)
	assert.Equal(t, "c.pdf", result.Analyses[2].Identifier)
	assert.Equal(t, entity.OverallAllFullyReimbursed, result.OverallStatus)
	assert.Equal(t, entity.StatusCounts{FullyReimbursed: 3}, result.StatusCounts)
	f.analyzer.AssertNumberOfCalls(t, "Analyze", 3)
}

func TestBatchService_Run_EmptyInvoiceTextSkipsModel(t *testing.T) {
	f := newBatchFixture(t)
	f.extractor.texts["scan.pdf"] = "   \n"

	result, err := f.run(t, "policy.pdf", zipOf(t, "scan.pdf"))

	require.NoError(t, err)
	require.Len(t, result.Analyses, 1)
	assert.Equal(t, entity.StatusDeclined, result.Analyses[0].Status)
	assert.Zero(t, result.Analyses[0].ReimbursableAmount)
	assert.Equal(t, entity.ReasonNoReadableText, result.Analyses[0].Reason)
	assert.Equal(t, entity.OverallAllDeclined, result.OverallStatus)
	f.analyzer.AssertNumberOfCalls(t, "Analyze", 0)
}

func TestBatchService_Run_PerInvoiceFailuresAreContained(t *testing.T) {
	f := newBatchFixture(t)
	f.extractor.texts["ok.pdf"] = "Hotel: $100"
	f.extractor.texts["bad-json.pdf"] = "Dinner: $30"
	f.extractor.errs["broken.pdf"] = fmt.Errorf("%w: corrupt xref", invoice.ErrExtraction)

	f.analyzer.On("Analyze", mock.Anything, mock.Anything, "ok.pdf", mock.Anything).
		Return(&entity.InvoiceVerdict{Identifier: "ok.pdf", Status: entity.StatusFullyReimbursed, ReimbursableAmount: 100, Reason: "Lodging clause"}, nil)
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, "bad-json.pdf", mock.Anything).
		Return(nil, fmt.Errorf("%w: model returned malformed JSON", ai.ErrAnalysis))

	result, err := f.run(t, "policy.pdf", zipOf(t, "ok.pdf", "broken.pdf", "bad-json.pdf"))

	require.NoError(t, err)
	require.Len(t, result.Analyses, 3)

	assert.Equal(t, entity.StatusFullyReimbursed, result.Analyses[0].Status)

	assert.Equal(t, entity.StatusDeclined, result.Analyses[1].Status)
	assert.Equal(t, "broken.pdf", result.Analyses[1].Identifier)
	assert.True(t, strings.HasPrefix(result.Analyses[1].Reason, "Processing error: "))

	assert.Equal(t, entity.StatusDeclined, result.Analyses[2].Status)
	assert.Contains(t, result.Analyses[2].Reason, "malformed JSON")
	assert.Zero(t, result.Analyses[2].ReimbursableAmount)

	assert.Equal(t, entity.OverallMixedStatus, result.OverallStatus)
	assert.Equal(t, entity.StatusCounts{FullyReimbursed: 1, Declined: 2}, result.StatusCounts)
	f.analyzer.AssertNumberOfCalls(t, "Analyze", 2)
	assertWorkspaceReleased(t, f.root)
}

func TestBatchService_Run_UserInputErrors(t *testing.T) {
	tests := []struct {
		name       string
		policyName string
		policyText string
		policyErr  error
		archive    func(t *testing.T) []byte
		wantMsg    string
	}{
		{
			name:       "policy is not a pdf",
			policyName: "policy.docx",
			policyText: "Meals reimbursed up to $50/day",
			archive:    func(t *testing.T) []byte { return zipOf(t, "a.pdf") },
			wantMsg:    MsgPolicyNotPDF,
		},
		{
			name:       "policy has no text",
			policyName: "policy.pdf",
			policyText: " \t\n",
			archive:    func(t *testing.T) []byte { return zipOf(t, "a.pdf") },
			wantMsg:    MsgPolicyUnreadable,
		},
		{
			name:       "policy cannot be parsed",
			policyName: "policy.pdf",
			policyErr:  fmt.Errorf("%w: encrypted", invoice.ErrExtraction),
			archive:    func(t *testing.T) []byte { return zipOf(t, "a.pdf") },
			wantMsg:    MsgPolicyUnreadable,
		},
		{
			name:       "archive has no pdf entries",
			policyName: "policy.pdf",
			policyText: "Meals reimbursed up to $50/day",
			archive:    func(t *testing.T) []byte { return zipOf(t, "readme.txt", "__MACOSX/._x.pdf") },
			wantMsg:    MsgNoInvoicePDFs,
		},
		{
			name:       "archive is not a zip",
			policyName: "policy.pdf",
			policyText: "Meals reimbursed up to $50/day",
			archive:    func(t *testing.T) []byte { return []byte("plain text") },
			wantMsg:    MsgArchiveNotZip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBatchFixture(t)
			f.extractor.texts["policy.pdf"] = tt.policyText
			f.extractor.texts["policy.docx"] = tt.policyText
			if tt.policyErr != nil {
				f.extractor.errs["policy.pdf"] = tt.policyErr
			}

			result, err := f.run(t, tt.policyName, tt.archive(t))

			assert.Nil(t, result)
			var inputErr *UserInputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.wantMsg, inputErr.Error())
			f.analyzer.AssertNumberOfCalls(t, "Analyze", 0)
			assertWorkspaceReleased(t, f.root)
		})
	}
}

func TestBatchService_Run_RecordsAndNotifies(t *testing.T) {
	repo := &mockBatchRepo{err: errors.New("disk full")}
	notifier := &mockNotifier{}
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	f := newBatchFixture(t,
		WithBatchRepository(repo),
		WithBatchNotifier(notifier),
		WithClock(func() time.Time { return fixed }),
	)
	f.extractor.texts["a.pdf"] = "Gym membership: $40"
	f.analyzer.On("Analyze", mock.Anything, mock.Anything, "a.pdf", mock.Anything).
		Return(&entity.InvoiceVerdict{Identifier: "a.pdf", Status: entity.StatusDeclined, Reason: "Not covered"}, nil)

	result, err := f.run(t, "policy.pdf", zipOf(t, "a.pdf"))

	require.NoError(t, err, "recording and notification failures must not fail the batch")
	require.Len(t, repo.saved, 1)
	assert.Equal(t, result.ID, repo.saved[0].Result.ID)
	assert.Equal(t, "policy.pdf", repo.saved[0].PolicyFilename)
	assert.Equal(t, "invoices.zip", repo.saved[0].ArchiveFilename)
	assert.Equal(t, fixed, result.CreatedAt)
	require.Len(t, notifier.results, 1)
	assert.Equal(t, entity.OverallAllDeclined, notifier.results[0].OverallStatus)
}
