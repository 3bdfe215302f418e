package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressOf(t *testing.T) {
	cases := []struct {
		name    string
		counter int64
		total   int64
		want    KindProgress
	}{
		{"empty set", 0, 0, KindProgress{}},
		{"negative total", 5, -1, KindProgress{}},
		{"nothing indexed", 0, 10, KindProgress{Indexed: 0, Total: 10, Percent: 0}},
		{"halfway", 5, 10, KindProgress{Indexed: 5, Total: 10, Percent: 50}},
		{"rounds down", 1, 3, KindProgress{Indexed: 1, Total: 3, Percent: 33}},
		{"complete", 10, 10, KindProgress{Indexed: 10, Total: 10, Percent: 100}},
		{"counter past total", 120, 10, KindProgress{Indexed: 10, Total: 10, Percent: 100}},
		{"negative counter", -3, 10, KindProgress{Indexed: 0, Total: 10, Percent: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, progressOf(tc.counter, tc.total))
		})
	}
}
