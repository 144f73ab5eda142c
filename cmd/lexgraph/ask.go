package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/emit"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/qa"
)

type askOptions struct {
	trace       bool
	spans       bool
	metricsAddr string
	fanOut      int
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question, or start an interactive session",
		Long: `Answer a question about the Constitution of India.

With a question argument, lexgraph prints the answer and exits. Without one it
reads questions from standard input until 'q', 'quit' or 'exit'.

Examples:
  lexgraph ask "What is the right to privacy?"
  lexgraph ask --trace "Tell me about Article 370 abrogation"
  lexgraph ask --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&opts.trace, "trace", false, "print each step as it completes")
	cmd.Flags().BoolVar(&opts.spans, "spans", false, "record OpenTelemetry spans and print them on exit")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().IntVar(&opts.fanOut, "fan-out", -1, "run every selected specialist concurrently, at most N at a time (0 disables; default from config)")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, opts *askOptions, question string) error {
	ctx := cmd.Context()
	cfg := a.cfg

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if n, err := st.Count(ctx); err == nil && n == 0 {
		a.logger.Warn("passage store is empty; run 'lexgraph ingest' first", "driver", cfg.Store.Driver)
	}

	tracker := model.NewCostTracker()
	chat, closeModel, err := newChatModel(ctx, cfg, tracker)
	if err != nil {
		return err
	}
	defer func() { _ = closeModel() }()

	emitters := emit.Multi{emit.NewSlogEmitter(a.logger)}
	execOpts := []graph.Option{
		graph.WithLogger(a.logger),
		graph.WithStepTimeout(cfg.StepTimeout()),
		graph.WithRunTimeout(cfg.RunTimeout()),
	}

	fanOut := cfg.Run.FanOut
	if opts.fanOut >= 0 {
		fanOut = opts.fanOut
	}
	if fanOut > 0 {
		execOpts = append(execOpts, graph.WithFanOut(fanOut))
	}

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		execOpts = append(execOpts, graph.WithMetrics(graph.NewPrometheusMetrics(reg)))
		stop := a.serveMetrics(opts.metricsAddr, reg)
		defer stop()
	}

	if opts.spans {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		spans := emit.NewOTelEmitter(tp.Tracer("lexgraph"), tp.ForceFlush)
		emitters = append(emitters, spans)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = spans.Flush(flushCtx)
			printSpans(cmd.ErrOrStderr(), exporter.GetSpans())
			_ = tp.Shutdown(flushCtx)
		}()
	}
	execOpts = append(execOpts, graph.WithEmitter(emitters))

	assistant, err := qa.NewAssistant(qa.Deps{Model: chat, TopK: cfg.Store.TopK}, st, execOpts...)
	if err != nil {
		return err
	}

	s := &session{assistant: assistant, trace: opts.trace, out: cmd.OutOrStdout(), traceOut: cmd.ErrOrStderr()}
	if question != "" {
		s.printAnswer(s.answer(ctx, question))
	} else {
		a.logger.Info("entering interactive mode; type 'q' or 'quit' to exit")
		err = s.repl(ctx, cmd.InOrStdin())
	}

	if a.verbose {
		fmt.Fprintln(cmd.ErrOrStderr(), tracker.String())
	}
	return err
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printSpans(w io.Writer, spans tracetest.SpanStubs) {
	for _, s := range spans {
		fmt.Fprintf(w, "span %-28s %v\n", s.Name, s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	}
}

// streamer runs one question, yielding its snapshots.
type streamer interface {
	Stream(ctx context.Context, query string) iter.Seq[graph.Snapshot]
}

// session answers questions for one CLI invocation.
type session struct {
	assistant streamer
	trace     bool
	out       io.Writer
	traceOut  io.Writer
}

func (s *session) answer(ctx context.Context, query string) string {
	res := &graph.Result{}
	for snap := range s.assistant.Stream(ctx, query) {
		if s.trace {
			fmt.Fprintln(s.traceOut, snap)
		}
		if snap.Final {
			res.Final = snap.State
			res.Completed = snap.Completed
		}
	}
	return res.FinalAnswer()
}

func (s *session) printAnswer(answer string) {
	fmt.Fprint(s.out, "\n--- Final Answer ---\n\n")
	fmt.Fprintln(s.out, answer)
	fmt.Fprint(s.out, "\n--------------------\n\n")
}

// repl reads questions from in until an exit word, end of input or
// cancellation of ctx.
func (s *session) repl(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprint(s.out, "\nEnter your question: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(s.out)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		query := strings.TrimSpace(line)
		if isExit(query) {
			return nil
		}
		if query == "" {
			continue
		}
		s.printAnswer(s.answer(ctx, query))
	}
}

func isExit(query string) bool {
	switch strings.ToLower(query) {
	case "q", "quit", "exit":
		return true
	}
	return false
}
