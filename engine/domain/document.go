package domain

import (
	"path/filepath"
	"strings"
)

// Media types accepted for upload.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"
)

// Document is an uploaded file awaiting extraction. It only lives for the
// duration of an ingestion batch.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

// IsPDF reports whether the document should go through the PDF extractor,
// judged by declared media type first and name suffix second.
func (d Document) IsPDF() bool {
	mt := strings.ToLower(strings.TrimSpace(d.MediaType))
	if i := strings.IndexByte(mt, ';'); i != -1 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == MediaTypePDF {
		return true
	}
	return strings.EqualFold(filepath.Ext(d.Name), ".pdf")
}
