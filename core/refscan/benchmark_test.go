package refscan

import (
	"strings"
	"testing"
)

// BenchmarkParse measures a full scan over texts of increasing size.
func BenchmarkParse(b *testing.B) {
	sizes := []struct {
		name    string
		repeats int
	}{
		{"Small_1Plan", 1},
		{"Medium_50Plans", 50},
		{"Large_1000Plans", 1000},
	}

	for _, sz := range sizes {
		text := strings.Repeat(readingPlan+"\n", sz.repeats)
		b.Run(sz.name, func(b *testing.B) {
			b.SetBytes(int64(len(text)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(text)
			}
		})
	}
}

func BenchmarkExpandList(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := ExpandList("1-20, 25, 30-40"); err != nil {
			b.Fatal(err)
		}
	}
}
