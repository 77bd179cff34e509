package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

func TestChunks_SkyAndGrass(t *testing.T) {
	seq, err := Chunks("The sky is blue. Grass is green.", 20, 5)
	require.NoError(t, err)

	chunks := seq.Collect()
	require.Len(t, chunks, 3)
	assert.Equal(t, "The sky is blue. Gra", chunks[0].Text)
	assert.Equal(t, ". Grass is green.", chunks[1].Text)
	assert.Equal(t, "n.", chunks[2].Text)
	assert.Contains(t, chunks[0].Text, "sky is blue.")
}

func TestChunks_OffsetsAdvanceByStep(t *testing.T) {
	text := strings.Repeat("abcdefghij", 23)
	seq, err := Chunks(text, 37, 11)
	require.NoError(t, err)

	chunks := seq.Collect()
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i*seq.Step(), c.Offset)
		assert.LessOrEqual(t, len([]rune(c.Text)), 37)
	}
	last := chunks[len(chunks)-1]
	assert.Less(t, last.Offset, len(text))
	assert.GreaterOrEqual(t, last.Offset+seq.Step(), len(text))
}

func TestChunks_EveryCharacterCovered(t *testing.T) {
	text := "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor."
	seq, err := Chunks(text, 12, 4)
	require.NoError(t, err)

	covered := make([]bool, len([]rune(text)))
	for c := range seq.All() {
		for i := range []rune(c.Text) {
			covered[c.Offset+i] = true
		}
	}
	for i, r := range []rune(text) {
		if r != ' ' {
			assert.True(t, covered[i], "character %d (%q) not covered", i, r)
		}
	}
}

func TestChunks_SkipsBlankWindows(t *testing.T) {
	text := "alpha" + strings.Repeat(" ", 30) + "omega"
	seq, err := Chunks(text, 10, 0)
	require.NoError(t, err)

	chunks := seq.Collect()
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 30, chunks[1].Offset)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunks_CountsCharactersNotBytes(t *testing.T) {
	seq, err := Chunks("héllo wörld", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"héllo", " wörl", "d"}, seq.Texts())
}

func TestChunks_Restartable(t *testing.T) {
	seq, err := Chunks("one two three four five six", 8, 2)
	require.NoError(t, err)
	assert.Equal(t, seq.Texts(), seq.Texts())

	// Stopping early does not disturb the next pass.
	for range seq.All() {
		break
	}
	assert.Len(t, seq.Collect(), len(seq.Texts()))
}

func TestChunks_InvalidConfiguration(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{5, 5}, {5, 10}, {0, 0}, {10, -1}} {
		seq, err := Chunks("some text", tc.size, tc.overlap)
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		assert.Empty(t, seq.Collect())
	}
}

func TestChunks_EmptyText(t *testing.T) {
	seq, err := Chunks("", DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Empty(t, seq.Collect())

	seq, err = Chunks(" \n\t ", DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Empty(t, seq.Collect())
}

func TestSplit(t *testing.T) {
	texts, err := Split("The sky is blue. Grass is green.", 20, 5)
	require.NoError(t, err)
	assert.Len(t, texts, 3)

	_, err = Split("x", 1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
