package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageSource is the slice of a PDF reader the extractor needs.
// Pages are numbered from 1.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(n int) (string, error) {
	page := p.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}
	return joinPages(pdfPages{r: r}), nil
}

// joinPages concatenates page texts without reflow. A page whose text layer
// is missing or unreadable contributes an empty string.
func joinPages(src pageSource) string {
	var b strings.Builder
	for n := 1; n <= src.NumPage(); n++ {
		t, err := src.PageText(n)
		if err != nil {
			continue
		}
		b.WriteString(t)
	}
	return b.String()
}
