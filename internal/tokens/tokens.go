// Package tokens counts tokens for chunk budgeting.
package tokens

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// Counter counts tokens with a tiktoken encoding, or whitespace-separated
// words when no encoding is available.
type Counter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewCounter loads the named encoding (e.g. cl100k_base).
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	cacheMu.RLock()
	cached, ok := encodingCache[encoding]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, name: encoding}, nil
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	cacheMu.Lock()
	encodingCache[encoding] = enc
	cacheMu.Unlock()
	return &Counter{encoding: enc, name: encoding}, nil
}

// NewCounterOrWords is NewCounter with a fallback to word counting.
func NewCounterOrWords(encoding string) *Counter {
	c, err := NewCounter(encoding)
	if err != nil {
		slog.Warn("token encoding unavailable, counting words", "encoding", encoding, "error", err)
		return Words()
	}
	return c
}

// Words returns a counter that counts whitespace-separated words.
func Words() *Counter {
	return &Counter{name: "words"}
}

func (c *Counter) Name() string { return c.name }

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return len(strings.Fields(text))
	}
	return len(c.encoding.Encode(text, nil, nil))
}
