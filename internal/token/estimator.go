package token

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens in text. It prefers a real tiktoken encoding and
// falls back to a word-based heuristic when the encoding cannot be loaded
// (offline environments, missing embedded data). The fallback is silent:
// estimation never fails.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an estimator using the cl100k_base encoding when
// available. The encoding is loaded lazily on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the token count for text. Deterministic for identical
// input, monotonic in length, always >= 0.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})

	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return heuristicTokens(text)
}

// heuristicTokens approximates token count from word count.
// Roughly 1.33 tokens per word for English-like text.
func heuristicTokens(text string) int {
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
