package invoice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrExtraction is returned when a PDF cannot be parsed at all (corrupt or encrypted).
// A parseable PDF with no text layer is not an error; it yields an empty string.
var ErrExtraction = errors.New("pdf text extraction failed")

// PDF engines selectable through configuration
const (
	EngineMuPDF  = "mupdf"
	EngineNative = "native"
)

// pageReader returns the text of every page of a PDF in document order
type pageReader interface {
	ReadPages(data []byte) ([]string, error)
}

// TextExtractor turns PDF bytes into plain text
type TextExtractor struct {
	engine string
	reader pageReader
	logger *zap.Logger
}

// NewTextExtractor creates a text extractor backed by the named engine
func NewTextExtractor(engine string, logger *zap.Logger) (*TextExtractor, error) {
	var reader pageReader
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case EngineMuPDF, "":
		engine = EngineMuPDF
		reader = mupdfReader{}
	case EngineNative:
		reader = nativeReader{}
	default:
		return nil, fmt.Errorf("unsupported pdf engine: %q", engine)
	}

	return &TextExtractor{
		engine: engine,
		reader: reader,
		logger: logger,
	}, nil
}

// Engine returns the name of the engine in use
func (e *TextExtractor) Engine() string {
	return e.engine
}

// Extract concatenates the text of all pages. Pages without text contribute nothing.
func (e *TextExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrExtraction)
	}

	pages, err := e.reader.ReadPages(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	e.logger.Debug("Extracted PDF text",
		zap.String("engine", e.engine),
		zap.Int("page_count", len(pages)))

	return strings.Join(pages, ""), nil
}

// ExtractFile reads a PDF from disk and extracts its text
func (e *TextExtractor) ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf %s: %w", path, err)
	}

	text, err := e.Extract(ctx, data)
	if err != nil {
		e.logger.Warn("Failed to extract PDF text",
			zap.String("path", path),
			zap.Error(err))
		return "", fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	return text, nil
}
