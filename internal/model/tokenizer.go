package model

import (
	"strings"
	"sync"
)

// Reserved token ids shared by every tokenizer implementation.
const (
	TokenPad     = 0
	TokenEnd     = 1
	TokenUnknown = 2
)

// #region word-tokenizer

// WordTokenizer is a growable word-level tokenizer. Unseen words are assigned
// fresh ids on encode, so the vocabulary expands with the training stream and
// the model's projection is resized to match.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordTokenizer creates a tokenizer with only the reserved ids populated.
func NewWordTokenizer() *WordTokenizer {
	t := &WordTokenizer{
		ids:   make(map[string]int),
		words: []string{"<pad>", "<end>", "<unk>"},
	}
	t.ids["<pad>"] = TokenPad
	t.ids["<end>"] = TokenEnd
	t.ids["<unk>"] = TokenUnknown
	return t
}

// Encode lowercases and whitespace-splits text, growing the vocabulary for
// unseen words.
func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := strings.Fields(strings.ToLower(text))
	out := make([]int, 0, len(fields))
	for _, w := range fields {
		id, ok := t.ids[w]
		if !ok {
			id = len(t.words)
			t.ids[w] = id
			t.words = append(t.words, w)
		}
		out = append(out, id)
	}
	return out
}

// Decode maps ids back to words, skipping pad and end markers.
func (t *WordTokenizer) Decode(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var parts []string
	for _, id := range ids {
		if id == TokenPad || id == TokenEnd {
			continue
		}
		if id < 0 || id >= len(t.words) {
			parts = append(parts, t.words[TokenUnknown])
			continue
		}
		parts = append(parts, t.words[id])
	}
	return strings.Join(parts, " ")
}

// VocabSize returns the current vocabulary size including reserved ids.
func (t *WordTokenizer) VocabSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.words)
}

// PadID implements Tokenizer.
func (t *WordTokenizer) PadID() int { return TokenPad }

// EndID implements Tokenizer.
func (t *WordTokenizer) EndID() int { return TokenEnd }

// UnknownID implements Tokenizer.
func (t *WordTokenizer) UnknownID() int { return TokenUnknown }

// #endregion word-tokenizer
