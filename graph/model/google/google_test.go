package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/dshills/lexgraph/graph/model"
)

type fakeClient struct {
	resp     *genai.GenerateContentResponse
	err      error
	requests []request
	closed   bool
}

func (f *fakeClient) generate(_ context.Context, req request) (*genai.GenerateContentResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeClient) close() error {
	f.closed = true
	return nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 50, CandidatesTokenCount: 12},
	}
}

func TestNewChatModel_RequiresKey(t *testing.T) {
	_, err := NewChatModel(context.Background(), "", "", nil)
	if !errors.Is(err, model.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestChatModel_Chat(t *testing.T) {
	fake := &fakeClient{resp: textResponse("Article 32 is the right to constitutional remedies.")}
	temp := 0.2
	m := &ChatModel{modelName: DefaultModel, temperature: &temp, client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		model.SystemMessage("Be precise."),
		model.UserMessage("What is Article 32?"),
	}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if out.Text != "Article 32 is the right to constitutional remedies." {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, out.Model)
	}
	if out.Usage.InputTokens != 50 || out.Usage.OutputTokens != 12 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}

	req := fake.requests[0]
	if req.system != "Be precise." {
		t.Errorf("expected system instruction, got %q", req.system)
	}
	if len(req.parts) != 1 {
		t.Errorf("expected 1 part, got %d", len(req.parts))
	}
	if req.schema != nil {
		t.Error("expected no schema")
	}
}

func TestChatModel_Schema(t *testing.T) {
	fake := &fakeClient{resp: textResponse(`{"route_to_case_law": true}`)}
	m := &ChatModel{modelName: DefaultModel, client: fake}

	schema := &model.Schema{
		Name: "routing_decision",
		JSON: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"route_to_case_law": map[string]interface{}{"type": "boolean", "description": "needs cases"},
				"reasoning":         map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"route_to_case_law"},
		},
	}
	if _, err := m.Chat(context.Background(), []model.Message{model.UserMessage("route")}, schema); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	got := fake.requests[0].schema
	if got == nil {
		t.Fatal("expected converted schema")
	}
	if got.Type != genai.TypeObject {
		t.Errorf("expected object type, got %v", got.Type)
	}
	prop := got.Properties["route_to_case_law"]
	if prop == nil || prop.Type != genai.TypeBoolean || prop.Description != "needs cases" {
		t.Errorf("unexpected property schema %+v", prop)
	}
	if len(got.Required) != 1 || got.Required[0] != "route_to_case_law" {
		t.Errorf("unexpected required %v", got.Required)
	}
}

func TestConvertSchema_Nested(t *testing.T) {
	s := convertSchema(map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"n": map[string]interface{}{"type": "integer"},
			},
		},
	})
	if s.Type != genai.TypeArray || s.Items == nil || s.Items.Properties["n"].Type != genai.TypeInteger {
		t.Errorf("nested schema not converted: %+v", s)
	}
	if convertSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestChatModel_SafetyBlock(t *testing.T) {
	blocked := &genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{
			BlockReason: genai.BlockReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryHarassment, Blocked: false},
				{Category: genai.HarmCategoryDangerousContent, Blocked: true},
			},
		},
	}
	m := &ChatModel{modelName: DefaultModel, client: &fakeClient{err: blocked}}

	_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("x")}, nil)
	var safetyErr *SafetyFilterError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyFilterError, got %v", err)
	}
	if safetyErr.Category() != genai.HarmCategoryDangerousContent.String() {
		t.Errorf("unexpected category %q", safetyErr.Category())
	}
	if safetyErr.Reason() != genai.BlockReasonSafety.String() {
		t.Errorf("unexpected reason %q", safetyErr.Reason())
	}
}

func TestChatModel_EmptyResponse(t *testing.T) {
	m := &ChatModel{modelName: DefaultModel, client: &fakeClient{resp: &genai.GenerateContentResponse{}}}
	_, err := m.Chat(context.Background(), []model.Message{model.UserMessage("x")}, nil)
	if !errors.Is(err, model.ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
}

func TestChatModel_Close(t *testing.T) {
	fake := &fakeClient{}
	m := &ChatModel{client: fake}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fake.closed {
		t.Error("expected client to be closed")
	}
}
