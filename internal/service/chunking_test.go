package service

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText("", DefaultChunkConfig()))
	assert.Nil(t, ChunkText("   \n\t ", DefaultChunkConfig()))
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("  Employees accrue 2 days of leave per month.  ", DefaultChunkConfig())
	assert.Equal(t, []string{"Employees accrue 2 days of leave per month."}, chunks)
}

func TestChunkText_ExtendsToNextSpace(t *testing.T) {
	cfg := ChunkConfig{Size: 10, Overlap: 3, Lookahead: 5}

	chunks := ChunkText("aaaa bbbb cccc dddd", cfg)
	assert.Equal(t, []string{"aaaa bbbb cccc", "ccc dddd"}, chunks)
}

func TestChunkText_NoSpaceWithinLookahead(t *testing.T) {
	cfg := ChunkConfig{Size: 4, Overlap: 1, Lookahead: 2}

	chunks := ChunkText("abcdefghij klm", cfg)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "abcd", chunks[0])
}

func TestChunkText_NoRedundantTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "word%03d ", i)
	}
	text := sb.String()

	chunks := ChunkText(text, DefaultChunkConfig())
	require.Greater(t, len(chunks), 1)

	last := chunks[len(chunks)-1]
	prev := chunks[len(chunks)-2]
	assert.False(t, strings.Contains(prev, last), "tail chunk must add new text")
	assert.True(t, strings.HasSuffix(last, "word399"))
}

func TestChunkText_OverlapAndBounds(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "policy%04d ", i)
	}

	cfg := DefaultChunkConfig()
	chunks := ChunkText(sb.String(), cfg)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.Size+cfg.Lookahead)
		assert.NotEmpty(t, strings.TrimSpace(c))
		if i > 0 {
			// The first word of each chunk after the first appeared in its predecessor.
			first := strings.Fields(c)[1]
			assert.Contains(t, chunks[i-1], first)
		}
	}
	assert.True(t, strings.HasPrefix(chunks[0], "policy0000"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "policy0499"))
}

func TestChunkText_RuneSafe(t *testing.T) {
	text := strings.Repeat("política de férias ", 100)
	chunks := ChunkText(text, ChunkConfig{Size: 50, Overlap: 10, Lookahead: 20})

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestChunkText_InvalidConfigFallsBack(t *testing.T) {
	text := strings.Repeat("x ", 1000)
	chunks := ChunkText(text, ChunkConfig{})
	assert.NotEmpty(t, chunks)

	// Overlap >= size would never advance; it is ignored instead.
	chunks = ChunkText(text, ChunkConfig{Size: 10, Overlap: 10, Lookahead: 0})
	assert.NotEmpty(t, chunks)
}
