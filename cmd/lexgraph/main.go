// Command lexgraph answers questions about the Constitution of India from an
// ingested corpus.
//
// Usage:
//
//	lexgraph ingest constitution.txt part3.txt
//	lexgraph ask "What is the right to privacy?"
//	lexgraph ask            # interactive
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
