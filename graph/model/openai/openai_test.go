package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/lexgraph/graph/model"
)

type fakeClient struct {
	replies []*openai.ChatCompletion
	errs    []error
	params  []openai.ChatCompletionNewParams
}

func (f *fakeClient) createCompletion(_ context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	i := len(f.params)
	f.params = append(f.params, params)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func completion(text string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Model: "llama-3.3-70b-versatile",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: text}},
		},
		Usage: openai.CompletionUsage{PromptTokens: 120, CompletionTokens: 30},
	}
}

func apiError(status int) error {
	return &openai.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.groq.com/openai/v1/chat/completions", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func newTestModel(fake *fakeClient) *ChatModel {
	return &ChatModel{
		modelName:  GroqDefaultModel,
		provider:   "groq",
		client:     fake,
		maxRetries: 2,
		retryDelay: time.Millisecond,
	}
}

func TestNewGroqChatModel(t *testing.T) {
	if _, err := NewGroqChatModel("", "", nil); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	m, err := NewGroqChatModel("gsk-test", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.modelName != GroqDefaultModel {
		t.Errorf("expected %s, got %s", GroqDefaultModel, m.modelName)
	}
	if m.provider != "groq" {
		t.Errorf("expected provider groq, got %s", m.provider)
	}
}

func TestChatModel_Chat(t *testing.T) {
	fake := &fakeClient{replies: []*openai.ChatCompletion{completion("Article 14 guarantees equality before law.")}}
	m := newTestModel(fake)
	temp := 0.0
	m.temperature = &temp

	out, err := m.Chat(context.Background(), []model.Message{
		model.SystemMessage("Answer briefly."),
		model.UserMessage("What is Article 14?"),
	}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out.Text != "Article 14 guarantees equality before law." {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Model != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected model %q", out.Model)
	}
	if out.Usage.InputTokens != 120 || out.Usage.OutputTokens != 30 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}

	p := fake.params[0]
	if len(p.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(p.Messages))
	}
	if p.Messages[0].OfSystem == nil || p.Messages[1].OfUser == nil {
		t.Error("expected system then user message")
	}
	if p.ResponseFormat.OfJSONObject != nil {
		t.Error("JSON mode should be off without a schema")
	}
}

func TestChatModel_JSONMode(t *testing.T) {
	fake := &fakeClient{replies: []*openai.ChatCompletion{completion(`{"route_to_article_search": true}`)}}
	m := newTestModel(fake)

	schema := &model.Schema{Name: "routing_decision", JSON: map[string]interface{}{"type": "object"}}
	if _, err := m.Chat(context.Background(), []model.Message{model.UserMessage("route")}, schema); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	p := fake.params[0]
	if p.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
	if len(p.Messages) != 2 || p.Messages[0].OfSystem == nil {
		t.Error("expected schema instruction as leading system message")
	}
}

func TestChatModel_RetriesTransientErrors(t *testing.T) {
	fake := &fakeClient{
		errs:    []error{apiError(429), apiError(503)},
		replies: []*openai.ChatCompletion{nil, nil, completion("ok")},
	}
	m := newTestModel(fake)

	out, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if out.Text != "ok" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if len(fake.params) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(fake.params))
	}
}

func TestChatModel_PermanentErrors(t *testing.T) {
	t.Run("unauthorized is not retried", func(t *testing.T) {
		fake := &fakeClient{errs: []error{apiError(401)}, replies: []*openai.ChatCompletion{completion("unused")}}
		m := newTestModel(fake)

		_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if !errors.Is(err, model.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if len(fake.params) != 1 {
			t.Errorf("expected 1 attempt, got %d", len(fake.params))
		}
	})

	t.Run("exhausted retries", func(t *testing.T) {
		fake := &fakeClient{
			errs:    []error{apiError(500), apiError(500), apiError(500)},
			replies: []*openai.ChatCompletion{completion("unused")},
		}
		m := newTestModel(fake)

		_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if !errors.Is(err, model.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
		if len(fake.params) != 3 {
			t.Errorf("expected 3 attempts, got %d", len(fake.params))
		}
	})

	t.Run("no choices", func(t *testing.T) {
		fake := &fakeClient{replies: []*openai.ChatCompletion{{}}}
		m := newTestModel(fake)

		_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if !errors.Is(err, model.ErrNoContent) {
			t.Errorf("expected ErrNoContent, got %v", err)
		}
	})
}

func TestNewChatModel_SingleRetryLayer(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{"server error is retried by Chat only", http.StatusInternalServerError, 4},
		{"rate limit is retried by Chat only", http.StatusTooManyRequests, 4},
		{"bad request is not retried", http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			}))
			defer srv.Close()

			m, err := NewChatModel("sk-test", "gpt-4o-mini", nil, option.WithBaseURL(srv.URL+"/v1"))
			if err != nil {
				t.Fatalf("NewChatModel failed: %v", err)
			}
			m.retryDelay = time.Millisecond

			if _, err := m.Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil); err == nil {
				t.Fatal("expected an error")
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("server saw %d requests, want %d", got, tt.wantHits)
			}
		})
	}
}
