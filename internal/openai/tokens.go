package openai

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// TokenCounter counts cl100k_base tokens. The encoding is loaded on first use;
// when it cannot be loaded the counter estimates four runes per token.
type TokenCounter struct {
	once         sync.Once
	encoding     *tiktoken.Tiktoken
	estimateOnly bool
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// NewEstimatingTokenCounter never loads the encoding.
func NewEstimatingTokenCounter() *TokenCounter {
	return &TokenCounter{estimateOnly: true}
}

func (t *TokenCounter) enc() *tiktoken.Tiktoken {
	if t == nil || t.estimateOnly {
		return nil
	}
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			slog.Warn("failed to load tiktoken encoding, using estimate", "encoding", tokenEncoding, "error", err)
			return
		}
		t.encoding = enc
	})
	return t.encoding
}

func (t *TokenCounter) Count(text string) int {
	enc := t.enc()
	if enc == nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func (t *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	enc := t.enc()
	if enc == nil {
		runes := []rune(text)
		if len(runes) <= maxTokens*4 {
			return text
		}
		return string(runes[:maxTokens*4])
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
