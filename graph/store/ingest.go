package store

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
)

// IngestFiles reads each file, splits it with sp and writes the chunks to w,
// one AddPassages call per file. Files are read and split concurrently, up to
// limit at a time; writes happen in path order. It returns the total number
// of passages written.
//
// A file with no text is skipped. The first read or write error aborts the
// ingestion.
func IngestFiles(ctx context.Context, w Writer, sp Splitter, paths []string, limit int) (int, error) {
	if limit <= 0 {
		limit = 4
	}

	chunked := make([][]Passage, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			chunks := sp.Split(string(data))
			passages := make([]Passage, len(chunks))
			for j, c := range chunks {
				passages[j] = Passage{Source: path, Ordinal: j, Text: c}
			}
			chunked[i] = passages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for i, passages := range chunked {
		if len(passages) == 0 {
			continue
		}
		n, err := w.AddPassages(ctx, passages)
		if err != nil {
			return total, fmt.Errorf("store %s: %w", paths[i], err)
		}
		total += n
	}
	return total, nil
}
