package invoice

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// nativeReader extracts text with the pure-Go ledongthuc/pdf parser. It needs no cgo.
type nativeReader struct{}

func (nativeReader) ReadPages(data []byte) (pages []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	pages = make([]string, reader.NumPage())
	for i := range pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i] = text
	}
	return pages, nil
}
