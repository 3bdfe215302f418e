package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextShortInputKeepsRawSuffix(t *testing.T) {
	in := "Hello, world! How's the forum doing?"
	out := Text(in)

	require.True(t, strings.HasSuffix(out, in), "short input keeps the original text as suffix")
	assert.True(t, strings.HasPrefix(out, "Hello world"), "segmented words come first: %q", out)
}

func TestTextLongInputSegmentedOnly(t *testing.T) {
	word := "lorem "
	in := strings.Repeat(word, 100) // 600 runes, well past the limit
	require.GreaterOrEqual(t, utf8.RuneCountInString(in), rawSuffixLimit)

	out := Text(in)
	assert.NotContains(t, out, "  ", "segmented form joins with single spaces")
	assert.Equal(t, strings.TrimSpace(strings.Repeat("lorem ", 100)), out)
}

func TestTextBoundaryAtLimit(t *testing.T) {
	// Exactly at the limit counts as long: no raw suffix.
	in := strings.Repeat("a", rawSuffixLimit)
	out := Text(in)
	assert.Equal(t, in, out, "single long token segments to itself")

	// One rune below keeps the suffix.
	in = strings.Repeat("a", rawSuffixLimit-1)
	out = Text(in)
	assert.Equal(t, in+" "+in, out)
}

func TestTextRuneCountNotByteCount(t *testing.T) {
	// 400 three-byte runes: 1200 bytes but only 400 runes, so still short.
	in := strings.Repeat("日", 400)
	out := Text(in)
	assert.True(t, strings.HasSuffix(out, in), "rune count decides the suffix policy")
}

func TestTextWhitespaceOnly(t *testing.T) {
	assert.Equal(t, "", Text(""))
	assert.Equal(t, "", Text("   \t\n  "))
}

func TestTextPunctuationOnlyFallsBackToRaw(t *testing.T) {
	// No word segments survive, but the trimmed raw text still indexes.
	assert.Equal(t, "?!", Text(" ?! "))
}

func TestWordsSegmentsCJKWithoutSpaces(t *testing.T) {
	words := Words("日本語のテスト")
	assert.NotEmpty(t, words, "CJK text yields segments despite no spaces")
	for _, w := range words {
		assert.NotEqual(t, "", w)
	}
}

func TestWordsDropsPunctuationRuns(t *testing.T) {
	words := Words("one, two... three!")
	assert.Equal(t, []string{"one", "two", "three"}, words)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("en"))
	assert.True(t, Supported("ja"), "bleve-only code counts")
	assert.True(t, Supported("ga"), "postgres-only code counts")
	assert.False(t, Supported("xx"))
	assert.False(t, Supported(""))
}

func TestPostgresConfigFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "german", PostgresConfig("de"))
	assert.Equal(t, "english", PostgresConfig("ja"), "unsupported code maps to english")
	assert.Equal(t, "english", PostgresConfig(""))
}

func TestBleveAnalyzerFallsBackToStandard(t *testing.T) {
	assert.Equal(t, "cjk", BleveAnalyzer("ja"))
	assert.Equal(t, "cjk", BleveAnalyzer("zh"))
	assert.Equal(t, "standard", BleveAnalyzer("ga"), "postgres-only code uses the standard analyzer")
	assert.Equal(t, "standard", BleveAnalyzer("xx"))
}
