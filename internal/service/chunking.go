package service

import (
	"log/slog"
	"strings"
	"unicode"
)

// ChunkConfig controls how document text is split. All values are in runes.
type ChunkConfig struct {
	Size      int
	Overlap   int
	Lookahead int // how far past the cut point to look for a space
}

// DefaultChunkConfig provides the defaults used for HR documents.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:      800,
		Overlap:   200,
		Lookahead: 100,
	}
}

// ChunkText splits text into overlapping windows of roughly cfg.Size runes.
// A cut is moved forward to the next whitespace when one lies within
// cfg.Lookahead runes, so words are not split. Blank chunks are dropped and
// the walk stops at the chunk that reaches the end of the text.
func ChunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = 0
	}

	runes := []rune(clean)
	if len(runes) <= cfg.Size {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/(cfg.Size-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end >= len(runes) {
			end = len(runes)
		} else if next := nextSpace(runes, end); next >= 0 && next < end+cfg.Lookahead {
			end = next
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
			if len(chunks)%10 == 0 {
				slog.Debug("chunking progress", "chunks", len(chunks), "position", end, "total", len(runes))
			}
		}

		if end >= len(runes) {
			break
		}

		nextStart := end - cfg.Overlap
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// nextSpace returns the index of the first whitespace rune at or after from, or -1.
func nextSpace(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
