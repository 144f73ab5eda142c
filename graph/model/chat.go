// Package model defines the text-generation collaborator used by the
// router and synthesizer steps, plus provider adapters, a test double and
// token cost accounting.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoContent is returned by adapters when the provider answered with no
// usable text. It is distinct from a valid-but-empty response only in that a
// provider-side failure is never reported as ErrNoContent.
var ErrNoContent = errors.New("model returned no content")

// ErrMissingAPIKey is returned by adapters constructed without credentials.
var ErrMissingAPIKey = errors.New("API key is required")

// Provider failure classes. Adapters wrap provider errors with one of these
// when the HTTP status identifies the cause.
var (
	ErrUnauthorized = errors.New("provider rejected credentials")
	ErrRateLimited  = errors.New("provider rate limit exceeded")
	ErrUnavailable  = errors.New("provider unavailable")
)

// ClassifyStatus wraps err with the failure class for an HTTP status code.
// Statuses without a class are wrapped with the provider name only.
func ClassifyStatus(provider string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%s: %w: %w", provider, ErrUnauthorized, err)
	case status == 429:
		return fmt.Errorf("%s: %w: %w", provider, ErrRateLimited, err)
	case status >= 500:
		return fmt.Errorf("%s: %w: %w", provider, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// ChatModel generates a reply to a conversation.
//
// When schema is non-nil the reply text must be a single JSON object
// conforming to schema. Adapters use the provider's native JSON mode where it
// exists and fall back to instructing the model otherwise; callers must still
// validate the result.
//
// Implementations must honor ctx cancellation and be safe for concurrent use.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, schema *Schema) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SystemMessage returns a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Schema describes a structured reply.
type Schema struct {
	// Name is a short identifier, e.g. "routing_decision".
	Name string

	Description string

	// JSON is a JSON Schema object: {"type":"object","properties":{...},"required":[...]}.
	JSON map[string]interface{}
}

// Instruction renders the schema as a prompt suffix for providers without a
// native structured-output mode.
func (s *Schema) Instruction() string {
	if s == nil {
		return ""
	}
	data, err := json.MarshalIndent(s.JSON, "", "  ")
	if err != nil {
		data = []byte("{}")
	}
	return "Respond with a single JSON object and nothing else. " +
		"It must match this JSON Schema (" + s.Name + "):\n" + string(data)
}

// ChatOut is a model reply.
type ChatOut struct {
	Text string

	// Model is the provider's model identifier for the reply, when known.
	Model string

	Usage Usage
}

// Usage counts tokens consumed by one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SplitSystem separates system messages from the conversation. Several
// providers take the system prompt as a separate parameter.
func SplitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
