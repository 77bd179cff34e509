package ingest

import (
	"errors"
	"fmt"

	"github.com/WessleyAI/wessley-rag/engine/chunker"
	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// Stage names used in failures, logs and metrics.
const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageStore   = "store"
)

// Progress is called after each chunk embedding completes, successful or
// not, with the 1-based position and the total number of chunks.
type Progress func(current, total int)

// Failure records one item that could not be processed. Chunk is -1 when
// the failure concerns the whole document.
type Failure struct {
	Document string
	Stage    string
	Chunk    int
	Err      error
}

func (f Failure) Error() string {
	if f.Chunk >= 0 {
		return fmt.Sprintf("ingest: %s: %s chunk %d: %v", f.Stage, f.Document, f.Chunk, f.Err)
	}
	return fmt.Sprintf("ingest: %s: %s: %v", f.Stage, f.Document, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report summarizes one ingestion run.
type Report struct {
	Documents int       `json:"documents"`
	Extracted int       `json:"extracted"`
	Chunks    int       `json:"chunks"`
	Embedded  int       `json:"embedded"`
	Stored    int       `json:"stored"`
	Failures  []Failure `json:"-"`
}

// Err joins every failure, or returns nil when the run was clean.
func (r Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// extracted is a document after text extraction.
type extracted struct {
	doc  domain.Document
	text string
}

// chunked is a document split into chunks.
type chunked struct {
	doc    domain.Document
	chunks []chunker.Chunk
}

// pending is a chunk waiting to be embedded.
type pending struct {
	doc   string
	chunk chunker.Chunk
}
