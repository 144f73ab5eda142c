package main

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/lexgraph/config"
)

// app is the state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	callID string
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "lexgraph",
		Short: "Answer questions about the Constitution of India",
		Long: `lexgraph routes each question to the specialists that can help with it
(constitutional text search, case law, historical context) and asks a language
model to synthesize an answer from what they found.

Configuration is read from lexgraph.yaml when present and from LEXGRAPH_*
environment variables. Provider API keys come from GROQ_API_KEY,
OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default lexgraph.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging and a token cost summary on exit")

	cmd.AddCommand(newAskCommand(a), newIngestCommand(a))
	return cmd
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.callID = uuid.NewString()
	a.logger = newLogger(cfg, logOut).With("call_id", a.callID)
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
