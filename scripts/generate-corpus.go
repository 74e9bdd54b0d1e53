//go:build ignore

// Package main writes synthetic change request files for load testing.
// Usage: go run scripts/generate-corpus.go -docs 10000 -batch 500 -output testdata/corpus
//
// Each output file is a JSON array accepted by `contentsearch submit` and
// by the inbox folder.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/output"
)

var (
	numDocs   = flag.Int("docs", 1000, "Number of documents to generate")
	batchSize = flag.Int("batch", 200, "Requests per file")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	indexes   = flag.Int("indexes", 1, "Spread documents over this many named indexes")
)

var words = []string{
	"river", "harbour", "market", "council", "budget", "school", "library",
	"festival", "railway", "weather", "election", "museum", "bridge", "garden",
	"hospital", "theatre", "stadium", "airport", "factory", "forest",
}

var categories = []string{"news", "events", "policy", "culture", "sport", "transport"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))
	out := output.New(os.Stdout)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		out.Errorf("create output dir: %v", err)
		os.Exit(1)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []document.ChangeRequest
	files := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		files++
		path := filepath.Join(*outputDir, fmt.Sprintf("batch-%05d.json", files))
		f, err := os.Create(path)
		if err != nil {
			out.Errorf("create %s: %v", path, err)
			os.Exit(1)
		}
		if err := output.New(f).JSON(batch); err != nil {
			out.Errorf("write %s: %v", path, err)
			os.Exit(1)
		}
		_ = f.Close()
		batch = batch[:0]
	}

	for i := 0; i < *numDocs; i++ {
		created := base.Add(time.Duration(rng.Intn(365*24)) * time.Hour)
		req := document.ChangeRequest{
			ID:               fmt.Sprintf("doc-%06d", i),
			Action:           document.ActionAdd,
			Title:            sentence(rng, 3+rng.Intn(5)),
			DisplayText:      sentence(rng, 40+rng.Intn(120)),
			Created:          created,
			Modified:         created,
			Culture:          "en",
			ItemType:         "article",
			Categories:       []string{categories[rng.Intn(len(categories))]},
			VirtualPathNodes: []string{"site", categories[rng.Intn(len(categories))], fmt.Sprintf("p%d", rng.Intn(50))},
			Authors:          []string{fmt.Sprintf("author%d", rng.Intn(25))},
		}
		if *indexes > 1 {
			req.NamedIndex = fmt.Sprintf("index%d", rng.Intn(*indexes))
		}
		batch = append(batch, req)
		if len(batch) == *batchSize {
			flush()
		}
	}
	flush()

	out.Successf("wrote %d documents in %d files to %s", *numDocs, files, *outputDir)
}

func sentence(rng *rand.Rand, n int) string {
	b := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, words[rng.Intn(len(words))]...)
	}
	return string(b)
}
