package chunking

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter approximates tokens as ceil(characters / 4).
type HeuristicCounter struct{}

// Count implements TokenCounter
func (HeuristicCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter resolves a counter by name: "heuristic" (default) or "tiktoken".
func NewTokenCounter(name, encoding string) (TokenCounter, error) {
	switch name {
	case "", "heuristic":
		return HeuristicCounter{}, nil
	case "tiktoken":
		if encoding == "" {
			encoding = "cl100k_base"
		}
		return NewTiktokenCounter(encoding)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
