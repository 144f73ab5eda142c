package emit

import (
	"context"
	"log/slog"
	"sort"
)

// SlogEmitter writes events as structured log records.
//
// Text versus JSON output is the handler's concern, so one emitter serves
// both terminal use and log shipping:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	emitter := emit.NewSlogEmitter(logger)
//
// Collaborator errors and step panics are logged at Warn and Error; step
// boundaries at Debug; run boundaries and routing at Info.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter returns an emitter that logs through logger.
// A nil logger falls back to slog.Default().
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit implements Emitter.
func (l *SlogEmitter) Emit(event Event) {
	attrs := []slog.Attr{slog.String("run_id", event.RunID)}
	if event.Step != "" {
		attrs = append(attrs, slog.String("step", event.Step), slog.Int("seq", event.Seq))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(context.Background(), levelFor(event.Msg), event.Msg, attrs...)
}

func levelFor(msg string) slog.Level {
	switch msg {
	case MsgStepPanic:
		return slog.LevelError
	case MsgCollaboratorError:
		return slog.LevelWarn
	case MsgStepStart, MsgStepEnd:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
