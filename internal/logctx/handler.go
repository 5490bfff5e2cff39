package logctx

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process logger: JSON records on w, fanned out to every
// non-nil extra handler, with trace ids injected from the active span.
func NewLogger(w io.Writer, level slog.Leveler, extra ...slog.Handler) *slog.Logger {
	handlers := []slog.Handler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}

	for _, h := range extra {
		if h != nil {
			handlers = append(handlers, h)
		}
	}

	if len(handlers) == 1 {
		return slog.New(NewTraceHandler(handlers[0]))
	}

	return slog.New(NewTraceHandler(slogmulti.Fanout(handlers...)))
}
