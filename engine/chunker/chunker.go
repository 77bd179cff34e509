// Package chunker splits extracted text into fixed-size overlapping windows.
package chunker

import (
	"iter"
	"strings"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// Defaults used when the session config does not override them.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Chunk is one emitted window. Offset counts characters (code points) from
// the start of the source text.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// Sequence is a lazy, restartable view over the chunks of one text.
type Sequence struct {
	runes   []rune
	size    int
	overlap int
}

// Chunks validates the window parameters and returns the chunk sequence of
// text. Nothing is computed until the sequence is iterated.
func Chunks(text string, size, overlap int) (Sequence, error) {
	if err := domain.ValidateChunking(size, overlap); err != nil {
		return Sequence{}, err
	}
	return Sequence{runes: []rune(text), size: size, overlap: overlap}, nil
}

// Step is the distance between consecutive window starts.
func (s Sequence) Step() int { return s.size - s.overlap }

// All yields the non-blank windows in order. It may be ranged over any
// number of times.
func (s Sequence) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		step := s.Step()
		if step <= 0 {
			return
		}
		idx := 0
		for start := 0; start < len(s.runes); start += step {
			end := min(start+s.size, len(s.runes))
			text := string(s.runes[start:end])
			if strings.TrimSpace(text) == "" {
				continue
			}
			if !yield(Chunk{Index: idx, Offset: start, Text: text}) {
				return
			}
			idx++
		}
	}
}

// Collect materialises the sequence.
func (s Sequence) Collect() []Chunk {
	var out []Chunk
	for c := range s.All() {
		out = append(out, c)
	}
	return out
}

// Texts returns the chunk texts in order.
func (s Sequence) Texts() []string {
	var out []string
	for c := range s.All() {
		out = append(out, c.Text)
	}
	return out
}

// Split is a convenience for callers that want the texts directly.
func Split(text string, size, overlap int) ([]string, error) {
	seq, err := Chunks(text, size, overlap)
	if err != nil {
		return nil, err
	}
	return seq.Texts(), nil
}
