// Package normalize prepares forum text for the index engines. Titles and
// post bodies arrive as raw user input; engines expect word-segmented text
// plus a language identifier they can map onto their own analyzers.
package normalize

import (
	"strings"
	"unicode/utf8"

	unicodetokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// rawSuffixLimit is the input length, in runes, below which the original
// text is appended after the segmented words. Short content keeps exact
// phrases and punctuation searchable; long content relies on the segmented
// form alone so index entries stay bounded.
const rawSuffixLimit = 500

var tokenizer = unicodetokenizer.NewUnicodeTokenizer()

// Text segments s into words joined by single spaces. Inputs shorter than
// rawSuffixLimit runes additionally carry the original text as a suffix.
// Whitespace-only input yields "".
func Text(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	segmented := strings.Join(Words(trimmed), " ")
	if utf8.RuneCountInString(trimmed) >= rawSuffixLimit {
		return segmented
	}
	if segmented == "" {
		return trimmed
	}
	return segmented + " " + trimmed
}

// Words returns the UAX#29 word segments of s in order. Whitespace and
// punctuation runs carry no segments, so scripts written without spaces
// (CJK in particular) still split into searchable units.
func Words(s string) []string {
	stream := tokenizer.Tokenize([]byte(s))
	words := make([]string, 0, len(stream))
	for _, tok := range stream {
		words = append(words, string(tok.Term))
	}
	return words
}
