// Package anthropic provides a model.ChatModel adapter for Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/lexgraph/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "claude-3-5-haiku-latest"

// ChatModel implements model.ChatModel for Claude models.
//
// The Messages API has no JSON mode, so a requested schema is appended to
// the system prompt as an instruction and the reply is trimmed to the
// outermost JSON object.
//
// Example:
//
//	m, err := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "", nil)
//	out, err := m.Chat(ctx, []model.Message{model.UserMessage("What is Article 21?")}, nil)
type ChatModel struct {
	modelName   string
	maxTokens   int64
	temperature *float64
	client      messagesClient
}

// messagesClient is the slice of the SDK used here, so tests can fake it.
type messagesClient interface {
	newMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkClient struct {
	client anthropic.Client
}

func (c *sdkClient) newMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}

// NewChatModel returns a Claude adapter. An empty modelName selects
// DefaultModel; a nil temperature leaves the provider default.
func NewChatModel(apiKey, modelName string, temperature *float64) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName:   modelName,
		maxTokens:   4096,
		temperature: temperature,
		client:      &sdkClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))},
	}, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, schema *model.Schema) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := m.buildParams(messages, schema)
	msg, err := m.client.newMessage(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, model.ClassifyStatus("anthropic", apiErr.StatusCode, err)
		}
		return model.ChatOut{}, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrNoContent
	}

	out := model.ChatOut{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	if schema != nil {
		out.Text = extractJSONObject(out.Text)
	}
	return out, nil
}

func (m *ChatModel) buildParams(messages []model.Message, schema *model.Schema) anthropic.MessageNewParams {
	system, rest := model.SplitSystem(messages)
	if schema != nil {
		if system != "" {
			system += "\n\n"
		}
		system += schema.Instruction()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if m.temperature != nil {
		params.Temperature = anthropic.Float(*m.temperature)
	}

	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params
}

// extractJSONObject returns the outermost {...} span of s, or s unchanged
// when there is none. Claude sometimes wraps JSON in prose or code fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
