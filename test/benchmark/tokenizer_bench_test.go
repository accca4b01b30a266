package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Travel award guidelines for graduate students",
	"abstract": `We study block sort-based indexing for collections that exceed main
        memory. Documents are grouped into fixed-size blocks, each block is inverted
        in memory and written as a sorted run, and runs are merged pairwise with
        bounded read buffers. The number of merge rounds grows logarithmically with
        the number of blocks while memory stays constant.`,
	"long": strings.Repeat(`Inverted indexes map each normalised term to the sorted list
        of documents that contain it. Building one over a large corpus is dominated by
        sorting, so external algorithms split the work into runs that fit in memory
        and merge them from disk. Buffer size trades memory against the number of
        reads issued per merge. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for _, stemmer := range []string{"simple", "porter2", "none"} {
		tokenize, err := tokenizer.New(stemmer)
		if err != nil {
			b.Fatal(err)
		}
		for name, text := range sampleTexts {
			b.Run(stemmer+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = tokenize(text)
				}
			})
		}
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["abstract"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}
