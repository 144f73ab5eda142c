package store

import (
	"context"
	"os"
	"testing"
)

func TestMySQLStore_Integration(t *testing.T) {
	dsn := os.Getenv("LEXGRAPH_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL integration test: set LEXGRAPH_TEST_MYSQL_DSN to run")
	}

	ctx := context.Background()
	st, err := NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if _, err := st.AddPassages(ctx, corpus); err != nil {
		t.Fatalf("AddPassages failed: %v", err)
	}

	results, err := st.Search(ctx, "personal liberty", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected FULLTEXT search to match")
	}
	if results[0].Source != "constitution.txt" || results[0].Ordinal != 0 {
		t.Errorf("expected Article 21 passage first, got %s#%d", results[0].Source, results[0].Ordinal)
	}
}
