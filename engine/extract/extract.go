// Package extract turns uploaded documents into plain text.
package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// ExtractionError reports a document that could not be turned into text.
// It matches domain.ErrExtraction and the underlying cause.
type ExtractionError struct {
	Document string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Document, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{domain.ErrExtraction, e.Err} }

// Extract returns the text of doc. PDFs yield their page texts concatenated
// in page order; everything else must be valid UTF-8.
func Extract(doc domain.Document) (string, error) {
	if doc.IsPDF() {
		text, err := extractPDF(doc.Data)
		if err != nil {
			return "", &ExtractionError{Document: doc.Name, Err: err}
		}
		return text, nil
	}
	text, err := decodeText(doc.Data)
	if err != nil {
		return "", &ExtractionError{Document: doc.Name, Err: err}
	}
	return text, nil
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	pos := 0
	for pos < len(data) {
		r, size := utf8.DecodeRune(data[pos:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		pos += size
	}
	return "", fmt.Errorf("%w at byte %d", domain.ErrDecoding, pos)
}
