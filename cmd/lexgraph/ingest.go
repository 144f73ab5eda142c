package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/lexgraph/config"
	"github.com/dshills/lexgraph/graph/store"
)

func newIngestCommand(a *app) *cobra.Command {
	var chunkSize, chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Split text documents into passages and add them to the store",
		Long: `Split UTF-8 text or markdown documents into overlapping passages and store
them for article search. Re-ingesting a file replaces its earlier passages.

Examples:
  lexgraph ingest constitution.txt
  lexgraph ingest --chunk-size 800 --chunk-overlap 100 part3.txt schedules.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			sp := store.Splitter{Size: cfg.Ingest.ChunkSize, Overlap: cfg.Ingest.Overlap()}
			if cmd.Flags().Changed("chunk-size") {
				sp.Size = chunkSize
				if cfg.Ingest.ChunkOverlap == nil || sp.Overlap >= sp.Size {
					sp.Overlap = config.DefaultOverlap(sp.Size)
				}
			}
			if cmd.Flags().Changed("chunk-overlap") {
				sp.Overlap = chunkOverlap
			}
			if sp.Size < 1 || sp.Overlap < 0 || sp.Overlap >= sp.Size {
				return fmt.Errorf("invalid chunking: size %d, overlap %d", sp.Size, sp.Overlap)
			}

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			start := time.Now()
			n, err := store.IngestFiles(ctx, st, sp, args, cfg.Ingest.Workers)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			total, err := st.Count(ctx)
			if err != nil {
				return fmt.Errorf("count passages: %w", err)
			}

			a.logger.Info("ingestion complete",
				"files", len(args),
				"passages", n,
				"stored", total,
				"duration", time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d passages from %d files (%d stored)\n", n, len(args), total)
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", store.DefaultChunkSize, "maximum passage length in characters")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", store.DefaultChunkOverlap, "characters shared by consecutive passages")
	return cmd
}
