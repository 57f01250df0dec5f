package logger

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var sentryEnabled atomic.Bool

// EnableSentry initialises the Sentry client. Error level records logged
// afterwards are captured as Sentry events. An empty DSN is a no-op.
// The returned function flushes buffered events and should be deferred.
func EnableSentry(dsn, env string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	}); err != nil {
		return func() {}, err
	}
	sentryEnabled.Store(true)
	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

type sentryHandler struct {
	next  slog.Handler
	attrs []slog.Attr
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError && sentryEnabled.Load() {
		h.capture(record)
	}
	return h.next.Handle(ctx, record)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &sentryHandler{next: h.next.WithAttrs(attrs), attrs: merged}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name), attrs: h.attrs}
}

func (h *sentryHandler) capture(record slog.Record) {
	var captured error
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("log_message", record.Message)
		add := func(a slog.Attr) bool {
			if a.Key == "error" {
				captured = errors.New(a.Value.String())
			}
			scope.SetExtra(a.Key, a.Value.String())
			return true
		}
		for _, a := range h.attrs {
			add(a)
		}
		record.Attrs(add)

		if captured != nil {
			sentry.CaptureException(captured)
			return
		}
		sentry.CaptureMessage(record.Message)
	})
}
