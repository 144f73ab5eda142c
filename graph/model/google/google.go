// Package google provides ChatModel adapter for Google Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/lexgraph/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// System messages become the model's SystemInstruction. A schema switches
// the model to application/json output with a converted ResponseSchema.
// Blocked prompts and candidates surface as *SafetyFilterError.
//
// Example usage:
//
//	m, err := google.NewChatModel(ctx, os.Getenv("GOOGLE_API_KEY"), "", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	out, err := m.Chat(ctx, []model.Message{model.UserMessage("What is Article 32?")}, nil)
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type ChatModel struct {
	modelName   string
	temperature *float64
	client      geminiClient
}

// request is one generation call in SDK-neutral form.
type request struct {
	model       string
	system      string
	schema      *genai.Schema
	temperature *float64
	parts       []genai.Part
}

// geminiClient defines the Gemini operations used here so tests can fake
// them.
type geminiClient interface {
	generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
	close() error
}

type sdkClient struct {
	client *genai.Client
}

func (c *sdkClient) generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	gm := c.client.GenerativeModel(req.model)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if req.schema != nil {
		gm.ResponseMIMEType = "application/json"
		gm.ResponseSchema = req.schema
	}
	if req.temperature != nil {
		gm.SetTemperature(float32(*req.temperature))
	}
	return gm.GenerateContent(ctx, req.parts...)
}

func (c *sdkClient) close() error {
	return c.client.Close()
}

// NewChatModel creates a Gemini adapter. The returned model holds an open
// client; call Close when done.
func NewChatModel(ctx context.Context, apiKey, modelName string, temperature *float64) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &ChatModel{
		modelName:   modelName,
		temperature: temperature,
		client:      &sdkClient{client: client},
	}, nil
}

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	return m.client.close()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, schema *model.Schema) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, rest := model.SplitSystem(messages)
	req := request{
		model:       m.modelName,
		system:      system,
		temperature: m.temperature,
		parts:       convertMessages(rest),
	}
	if schema != nil {
		req.schema = convertSchema(schema.JSON)
	}

	resp, err := m.client.generate(ctx, req)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, safetyError(blocked)
		}
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}

	out := convertResponse(resp)
	if out.Text == "" {
		return model.ChatOut{}, model.ErrNoContent
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

// convertMessages flattens the conversation into text parts. Gemini's
// single-shot API takes no roles; assistant turns are labelled inline.
func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		if msg.Role == model.RoleAssistant {
			parts = append(parts, genai.Text("Assistant: "+msg.Content))
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}

// convertSchema converts a JSON Schema map to genai.Schema, recursing into
// properties and array items.
func convertSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]interface{}); ok {
				result.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		result.Items = convertSchema(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []interface{}:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

// convertTypeString converts a JSON Schema type string to genai.Type constant.
func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out.Text = text.String()
	return out
}

// SafetyFilterError represents a Google safety filter block.
//
// Use errors.As to check for this error type:
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	if e.category == "" {
		return "content blocked by safety filter: " + e.reason
	}
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}

func safetyError(blocked *genai.BlockedError) *SafetyFilterError {
	e := &SafetyFilterError{}
	var ratings []*genai.SafetyRating

	switch {
	case blocked.PromptFeedback != nil:
		e.reason = blocked.PromptFeedback.BlockReason.String()
		ratings = blocked.PromptFeedback.SafetyRatings
	case blocked.Candidate != nil:
		e.reason = blocked.Candidate.FinishReason.String()
		ratings = blocked.Candidate.SafetyRatings
	}

	for _, r := range ratings {
		if r != nil && r.Blocked {
			e.category = r.Category.String()
			break
		}
	}
	return e
}
