// Package fulltext implements the text tokenizer and full-text index query
// of spec.md §4.10, built on top of the generic index engine.
package fulltext

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/blevesearch/segment"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer configures how input text is split into indexable tokens, per
// spec.md §4.10: a stemmer name (or "" for no stemming; English stop words
// are still filtered) and whether to strip diacritics.
type Tokenizer struct {
	stemmer          string
	removeDiacritics bool
	stopwords        map[string]bool
}

// NewTokenizer returns a Tokenizer for the given stemmer name.
func NewTokenizer(stemmer string, removeDiacritics bool) *Tokenizer {
	return &Tokenizer{stemmer: stemmer, removeDiacritics: removeDiacritics, stopwords: stopWordsFor(stemmer)}
}

// Token is one word produced by a TokenIterator: its stemmed text and its
// byte offset/length in the original input.
type Token struct {
	Text   string
	Offset int
	Length int
}

// TokenIterator yields the word tokens of one string, per spec.md §4.10.
type TokenIterator struct {
	tok    *Tokenizer
	unique bool
	seen   map[string]bool
	seg    *segment.Segmenter
	pos    int
	cur    Token
}

// Tokens returns a TokenIterator over text. If unique, only the first
// occurrence of each distinct stemmed token is yielded.
func (t *Tokenizer) Tokens(text string, unique bool) *TokenIterator {
	it := &TokenIterator{
		tok:    t,
		unique: unique,
		seg:    segment.NewWordSegmenter(bytes.NewReader([]byte(text))),
	}
	if unique {
		it.seen = make(map[string]bool)
	}
	return it
}

var diacriticsTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsTransform, s)
	if err != nil {
		return s
	}
	return out
}

func stem(stemmerName, word string) string {
	switch stemmerName {
	case "english":
		env := snowballstem.NewEnv(word)
		english.Stem(env)
		return env.Current()
	default:
		return word
	}
}

// Next advances to the next qualifying token, returning false at the end
// of input.
func (it *TokenIterator) Next() bool {
	for it.seg.Segment() {
		raw := it.seg.Bytes()
		offset := it.pos
		it.pos += len(raw)
		if it.seg.Type() == segment.None {
			continue
		}
		word := strings.ToLower(string(raw))
		if it.tok.removeDiacritics {
			word = stripDiacritics(word)
		}
		if it.tok.stopwords != nil && it.tok.stopwords[word] {
			continue
		}
		stemmed := stem(it.tok.stemmer, word)
		if stemmed == "" {
			continue
		}
		if it.unique {
			if it.seen[stemmed] {
				continue
			}
			it.seen[stemmed] = true
		}
		it.cur = Token{Text: stemmed, Offset: offset, Length: len(raw)}
		return true
	}
	return false
}

// Token returns the iterator's current token. Valid only after Next
// returns true.
func (it *TokenIterator) Token() Token { return it.cur }

// Err reports any error the underlying segmenter encountered.
func (it *TokenIterator) Err() error { return it.seg.Err() }
