package logger

import (
	"context"
	"log/slog"
	"runtime"
)

// conditionalSourceHandler adds file:line only to records at configured
// levels. Routine info lines stay compact while warnings and errors
// keep a pointer back to the call site.
type conditionalSourceHandler struct {
	next        slog.Handler
	sourceLevel map[slog.Level]bool
}

// NewConditionalSourceHandler wraps next so that source location is
// attached only for the given levels. next must be built with
// AddSource disabled, otherwise every record gets a (wrong) location.
func NewConditionalSourceHandler(next slog.Handler, levels ...slog.Level) slog.Handler {
	sourceLevel := make(map[slog.Level]bool, len(levels))
	for _, level := range levels {
		sourceLevel[level] = true
	}
	return &conditionalSourceHandler{
		next:        next,
		sourceLevel: sourceLevel,
	}
}

func (h *conditionalSourceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sourceLevel[r.Level] {
		// Skip Callers, Handle and the slog frame in between to land on
		// the actual logging call site.
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		frame, _ := runtime.CallersFrames(pcs[:]).Next()

		r.AddAttrs(slog.Attr{
			Key: slog.SourceKey,
			Value: slog.AnyValue(&slog.Source{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			}),
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *conditionalSourceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &conditionalSourceHandler{
		next:        h.next.WithAttrs(attrs),
		sourceLevel: h.sourceLevel,
	}
}

func (h *conditionalSourceHandler) WithGroup(name string) slog.Handler {
	return &conditionalSourceHandler{
		next:        h.next.WithGroup(name),
		sourceLevel: h.sourceLevel,
	}
}

func (h *conditionalSourceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}
