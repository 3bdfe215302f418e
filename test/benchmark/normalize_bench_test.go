package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/forumkit/searchsync/internal/normalize"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Incremental index synchronization keeps a full-text search index
        aligned with a living forum. Every post edit, topic move and deletion
        flows through a mutation event stream and converges on the same index
        state a full rebuild would produce. Eligibility rules filter deleted
        documents and excluded categories before anything reaches the engine.`,
	"long": strings.Repeat(`Forum search quality depends on text normalization.
        Titles and post bodies arrive with markup remnants, inconsistent
        whitespace and mixed scripts; segmentation splits them into words the
        index engine can match across languages. Counters track rebuild
        progress while the event router keeps the index live between rebuilds,
        and per-language analyzers decide how queries meet the indexed text. `, 20),
	"cjk": strings.Repeat("全文検索インデックスの増分同期を検証するためのサンプル本文です。", 12),
}

func BenchmarkNormalizeText(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				out := normalize.Text(text)
				_ = out
			}
		})
	}
}

func BenchmarkNormalizeTextParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			out := normalize.Text(text)
			_ = out
		}
	})
}

func BenchmarkNormalizeWords(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				words := normalize.Words(text)
				_ = words
			}
		})
	}
}

func BenchmarkNormalizeTextVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "forum topic post index synchronization search "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				out := normalize.Text(text)
				_ = out
			}
		})
	}
}
