package model

import "context"

type callerKey struct{}

// WithCaller tags ctx with the name of the component making generation
// calls, for cost attribution.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller set by WithCaller, or "".
func CallerFrom(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

// Metered wraps a ChatModel and records the usage of every successful call
// in a CostTracker.
type Metered struct {
	Model   ChatModel
	Tracker *CostTracker

	// Name is the pricing key. When empty the model named in the reply is
	// used instead.
	Name string
}

// NewMetered returns m wrapped with tracking into tracker.
func NewMetered(m ChatModel, tracker *CostTracker, name string) *Metered {
	return &Metered{Model: m, Tracker: tracker, Name: name}
}

// Chat implements ChatModel.
func (m *Metered) Chat(ctx context.Context, messages []Message, schema *Schema) (ChatOut, error) {
	out, err := m.Model.Chat(ctx, messages, schema)
	if err != nil || m.Tracker == nil {
		return out, err
	}

	name := m.Name
	if name == "" {
		name = out.Model
	}
	m.Tracker.Record(name, CallerFrom(ctx), out.Usage)
	return out, nil
}
