package model

import (
	"context"
	"sync"
	"time"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Responses are returned in order; the last one repeats once the script is
// exhausted. Err, when set, is returned from every call instead. Delay makes
// each call wait (honoring ctx) before answering, for timeout tests. Respond,
// when set, takes precedence over Responses and Err.
//
// Example:
//
//	mock := &model.MockChatModel{
//	    Responses: []model.ChatOut{{Text: `{"route_to_case_law": true}`}},
//	}
type MockChatModel struct {
	Responses []ChatOut
	Err       error
	Delay     time.Duration
	Respond   func(messages []Message, schema *Schema) (ChatOut, error)

	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records the arguments of one Chat call.
type MockChatCall struct {
	Messages []Message
	Schema   *Schema
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, schema *Schema) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Schema: schema})
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(messages, schema)
	}
	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears recorded calls and rewinds the script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of Chat calls so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
