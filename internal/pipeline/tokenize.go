package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/pcruz7/tgarc/internal/store"
)

// TokenizeResolver segments message content into lowercase word tokens
// using Unicode word boundaries. Punctuation and whitespace segments are
// discarded; a message without content gets an empty token list.
type TokenizeResolver struct{}

func NewTokenizeResolver() *TokenizeResolver { return &TokenizeResolver{} }

func (t *TokenizeResolver) Name() string { return "tokenize" }

// Run tokenizes every message in the batch in place.
func (t *TokenizeResolver) Run(ctx context.Context, batch []*store.Message) ([]*store.Message, error) {
	for _, m := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.Tokens = Tokenize(m.Content)
	}
	return batch, nil
}

// Tokenize splits text on Unicode word boundaries, keeping only segments
// that contain a letter or digit, lowercased.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	segs := words.FromString(text)
	for segs.Next() {
		tok := segs.Value()
		if !hasAlphaNum(tok) {
			continue
		}
		tokens = append(tokens, strings.ToLower(tok))
	}
	return tokens
}

func hasAlphaNum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
