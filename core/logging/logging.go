// Package logging wires log/slog to the OpenTelemetry bridge and to a local,
// process-wide sink that is configured once at startup.
//
// Package level loggers are created during init, before configuration is
// known, so the local sink is resolved on every record rather than captured.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/koscakluka/luna/core/correlation"
)

// CorrelationKey is the attribute added to records logged with a context that
// carries a correlation id.
const CorrelationKey = "correlation_id"

type Options struct {
	Level slog.Level
	JSON  bool
	// Output defaults to os.Stderr. Set Discard to silence the console.
	Output  io.Writer
	Discard bool
	// File, when set, receives a copy of every record.
	File string
}

var (
	local atomic.Pointer[slog.Handler]

	extrasMu sync.Mutex
	extras   = map[int]slog.Handler{}
	extraID  int
	extrasV  atomic.Pointer[[]slog.Handler]
)

func init() {
	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	local.Store(&h)
	extrasV.Store(&[]slog.Handler{})
}

// Configure replaces the local sink. The returned closer releases the log
// file, if one was opened.
func Configure(opts Options) (io.Closer, error) {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var writers []io.Writer
	if !opts.Discard {
		if opts.Output != nil {
			writers = append(writers, opts.Output)
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	out := io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}
	local.Store(&h)
	return closer, nil
}

// Attach adds a handler that receives every record after the local sink. The
// returned function detaches it.
func Attach(h slog.Handler) (detach func()) {
	extrasMu.Lock()
	defer extrasMu.Unlock()
	extraID++
	id := extraID
	extras[id] = h
	publishExtrasLocked()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			extrasMu.Lock()
			defer extrasMu.Unlock()
			delete(extras, id)
			publishExtrasLocked()
		})
	}
}

func publishExtrasLocked() {
	snapshot := make([]slog.Handler, 0, len(extras))
	for _, h := range extras {
		snapshot = append(snapshot, h)
	}
	extrasV.Store(&snapshot)
}

// NewLogger returns a logger for the given instrumentation scope.
func NewLogger(scope string) *slog.Logger {
	return slog.New(NewHandler(scope))
}

// NewHandler returns the handler used by NewLogger.
func NewHandler(scope string) slog.Handler {
	return &handler{
		scope: scope,
		otel:  otelslog.NewHandler(scope),
	}
}

// handler fans every record out to the otel bridge, the local sink and any
// attached handlers. Attributes and groups are replayed onto the current
// local sink at handle time.
type handler struct {
	scope string
	otel  slog.Handler
	ops   []func(slog.Handler) slog.Handler
}

func (h *handler) targets() []slog.Handler {
	targets := []slog.Handler{*local.Load()}
	targets = append(targets, *extrasV.Load()...)
	for i, target := range targets {
		for _, op := range h.ops {
			target = op(target)
		}
		targets[i] = target
	}
	return append(targets, h.otel)
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, target := range h.targets() {
		if target.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *handler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := correlation.FromContext(ctx); ok {
		record.AddAttrs(slog.String(CorrelationKey, id.String()))
	}

	var errs []error
	for _, target := range h.targets() {
		if !target.Enabled(ctx, record.Level) {
			continue
		}
		if err := target.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(h.otel.WithAttrs(attrs), func(next slog.Handler) slog.Handler {
		return next.WithAttrs(attrs)
	})
}

func (h *handler) WithGroup(name string) slog.Handler {
	return h.with(h.otel.WithGroup(name), func(next slog.Handler) slog.Handler {
		return next.WithGroup(name)
	})
}

func (h *handler) with(otel slog.Handler, op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &handler{scope: h.scope, otel: otel, ops: append(ops, op)}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps textual levels such as "debug" or "WARNING" to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "WARNING", "warning":
		return slog.LevelWarn, nil
	case "CRITICAL", "critical":
		return slog.LevelError, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q: %w", level, err)
	}
	return l, nil
}
