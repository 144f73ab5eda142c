package main

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go/option"

	"github.com/dshills/lexgraph/config"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/graph/model/anthropic"
	"github.com/dshills/lexgraph/graph/model/google"
	"github.com/dshills/lexgraph/graph/model/openai"
	"github.com/dshills/lexgraph/graph/store"
)

// openStore opens the configured passage store.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return store.NewSQLiteStore(cfg.Store.DSN)
	case config.DriverMySQL:
		return store.NewMySQLStore(cfg.Store.DSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// newChatModel builds the configured provider adapter, metered into tracker.
// The returned close function releases provider clients that hold
// connections.
func newChatModel(ctx context.Context, cfg *config.Config, tracker *model.CostTracker) (model.ChatModel, func() error, error) {
	key, err := cfg.RequireAPIKey()
	if err != nil {
		return nil, nil, err
	}
	p := cfg.Provider
	temp := p.Temperature
	noop := func() error { return nil }

	var (
		m       model.ChatModel
		closeFn = noop
	)
	switch p.Name {
	case config.ProviderGroq:
		if p.BaseURL != "" {
			name := p.Model
			if name == "" {
				name = openai.GroqDefaultModel
			}
			m, err = openai.NewChatModel(key, name, &temp, oai.WithBaseURL(p.BaseURL))
		} else {
			m, err = openai.NewGroqChatModel(key, p.Model, &temp)
		}
	case config.ProviderOpenAI:
		var opts []oai.RequestOption
		if p.BaseURL != "" {
			opts = append(opts, oai.WithBaseURL(p.BaseURL))
		}
		m, err = openai.NewChatModel(key, p.Model, &temp, opts...)
	case config.ProviderAnthropic:
		m, err = anthropic.NewChatModel(key, p.Model, &temp)
	case config.ProviderGoogle:
		var gm *google.ChatModel
		gm, err = google.NewChatModel(ctx, key, p.Model, &temp)
		if err == nil {
			m, closeFn = gm, gm.Close
		}
	default:
		err = fmt.Errorf("unknown provider %q", p.Name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create %s model: %w", p.Name, err)
	}

	return model.NewMetered(m, tracker, p.Model), closeFn, nil
}
