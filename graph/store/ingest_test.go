package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	a := write("part3.txt", "Article 21. Protection of life and personal liberty.")
	b := write("part21.txt", strings.Repeat("Article 370 temporary provision. ", 20))
	empty := write("blank.txt", "   ")

	ctx := context.Background()
	st := NewMemStore()
	n, err := IngestFiles(ctx, st, Splitter{Size: 200, Overlap: 50}, []string{a, b, empty}, 2)
	if err != nil {
		t.Fatalf("IngestFiles failed: %v", err)
	}

	count, _ := st.Count(ctx)
	if n != count {
		t.Errorf("reported %d passages, store has %d", n, count)
	}
	if n < 3 {
		t.Errorf("expected at least 3 passages, got %d", n)
	}

	results, _ := st.Search(ctx, "personal liberty", 1)
	if len(results) != 1 || results[0].Source != a {
		t.Errorf("expected passage from %s, got %+v", a, results)
	}
}

func TestIngestFiles_MissingFile(t *testing.T) {
	st := NewMemStore()
	_, err := IngestFiles(context.Background(), st, DefaultSplitter(), []string{filepath.Join(t.TempDir(), "nope.txt")}, 1)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
