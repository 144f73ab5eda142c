package qa

import (
	"context"
	"strings"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
)

// Synthesizer writes the final answer from everything the specialists found.
//
// It never leaves FinalAnswer empty: a failed call yields an error message
// and an empty reply yields graph.NoAnswer.
type Synthesizer struct {
	Model model.ChatModel
}

// Run implements graph.Step.
func (sy *Synthesizer) Run(ctx context.Context, s graph.State) graph.State {
	if sy.Model == nil {
		s.FinalAnswer = failureAnswer(ctx, errNoModel)
		return s
	}

	out, err := sy.Model.Chat(ctx, []model.Message{model.UserMessage(synthesizerPrompt(s))}, nil)
	if err != nil {
		s.FinalAnswer = failureAnswer(ctx, err)
		return s
	}

	answer := strings.TrimSpace(out.Text)
	if answer == "" {
		answer = graph.NoAnswer
	}
	s.FinalAnswer = answer
	return s
}

func failureAnswer(ctx context.Context, err error) string {
	graph.RecordFailure(ctx, &graph.CollaboratorError{Step: graph.StepSynthesizer, Op: "generate", Err: err})
	return "Error generating answer: " + err.Error()
}
