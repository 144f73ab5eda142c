// Package openai provides a model.ChatModel adapter for OpenAI-compatible
// chat completion APIs, including Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/lexgraph/graph/model"
)

// Defaults for the hosted endpoints this adapter is used with.
const (
	DefaultModel = "gpt-4o-mini"

	GroqBaseURL      = "https://api.groq.com/openai/v1/"
	GroqDefaultModel = "llama-3.3-70b-versatile"
)

// ChatModel implements model.ChatModel for OpenAI-compatible endpoints.
//
// Requests with a schema use the endpoint's JSON object mode and carry the
// schema as a system instruction. Rate limits and 5xx responses are retried
// with linear backoff.
//
// Example usage:
//
//	temp := 0.0
//	m, err := openai.NewGroqChatModel(os.Getenv("GROQ_API_KEY"), "", &temp)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Chat(ctx, []model.Message{model.UserMessage("What is Article 14?")}, nil)
type ChatModel struct {
	modelName   string
	provider    string
	temperature *float64
	client      completionsClient
	maxRetries  int
	retryDelay  time.Duration
}

// completionsClient is the part of the SDK this adapter needs.
type completionsClient interface {
	createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type sdkClient struct {
	client openai.Client
}

func (c *sdkClient) createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// NewChatModel returns an adapter for api.openai.com. Extra request options
// are passed to the SDK client.
func NewChatModel(apiKey, modelName string, temperature *float64, opts ...option.RequestOption) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	// Chat owns the retry policy.
	opts = append(opts, option.WithMaxRetries(0))
	return &ChatModel{
		modelName:   modelName,
		provider:    "openai",
		temperature: temperature,
		client:      &sdkClient{client: openai.NewClient(opts...)},
		maxRetries:  3,
		retryDelay:  time.Second,
	}, nil
}

// NewGroqChatModel returns an adapter for Groq's OpenAI-compatible endpoint.
func NewGroqChatModel(apiKey, modelName string, temperature *float64) (*ChatModel, error) {
	if modelName == "" {
		modelName = GroqDefaultModel
	}
	m, err := NewChatModel(apiKey, modelName, temperature, option.WithBaseURL(GroqBaseURL))
	if err != nil {
		return nil, err
	}
	m.provider = "groq"
	return m, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, schema *model.Schema) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := m.buildParams(messages, schema)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.call(ctx, params)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransient(err) || attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}

	if isTransient(lastErr) {
		return model.ChatOut{}, fmt.Errorf("%s API failed after %d retries: %w", m.provider, m.maxRetries, lastErr)
	}
	return model.ChatOut{}, lastErr
}

func (m *ChatModel) call(ctx context.Context, params openai.ChatCompletionNewParams) (model.ChatOut, error) {
	completion, err := m.client.createCompletion(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, model.ClassifyStatus(m.provider, apiErr.StatusCode, err)
		}
		return model.ChatOut{}, err
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrNoContent
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (m *ChatModel) buildParams(messages []model.Message, schema *model.Schema) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.modelName),
	}
	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}
	if schema != nil {
		params.Messages = append(params.Messages, openai.SystemMessage(schema.Instruction()))
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}
	return params
}

func isTransient(err error) bool {
	return errors.Is(err, model.ErrRateLimited) || errors.Is(err, model.ErrUnavailable)
}
