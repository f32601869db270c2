package invoice

import (
	"errors"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// mupdfReader extracts text with MuPDF through go-fitz
type mupdfReader struct{}

func (mupdfReader) ReadPages(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, fmt.Errorf("document is encrypted: %w", err)
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, doc.NumPage())
	for i := range pages {
		text, err := doc.Text(i)
		if err != nil {
			// unreadable page contributes no text
			continue
		}
		pages[i] = text
	}
	return pages, nil
}
