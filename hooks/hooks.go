// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/inpaint-adapter/core"
	apperrors "github.com/Skryldev/inpaint-adapter/errors"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewLogger returns a JSON logger on stderr at the named level
// ("debug", "info", "warn", "error"; anything else means info).
func NewLogger(level string) *SlogLogger { return NewLoggerTo(os.Stderr, level) }

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, level string) *SlogLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return NewSlogLogger(slog.New(h))
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

// With returns a logger that adds fields to every record.
func (s *SlogLogger) With(fields ...interface{}) *SlogLogger {
	return &SlogLogger{log: s.log.With(toAttrs(fields)...)}
}

func toAttrs(fields []interface{}) []any { return fields }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each normalization strategy.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStrategy(_ context.Context, name string, src core.Source) {
	h.logger.Debug("normalize.strategy.start",
		"strategy", name,
		"origin", src.Origin().String(),
	)
}

func (h *LoggingHook) AfterStrategy(_ context.Context, name string, out *core.EncodedImage, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("normalize.strategy.error",
			"strategy", name,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	fields := []interface{}{"strategy", name, "duration_ms", d.Milliseconds()}
	if out != nil {
		fields = append(fields, "media_type", out.MediaType, "bytes", out.Size())
	}
	h.logger.Debug("normalize.strategy.done", fields...)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	durationsMs map[string]int64 // cumulative ms per operation
	calls       map[string]int64 // call count per operation
	errors      map[string]int64 // error count per operation
	categories  map[string]int64 // error count per category

	totalThroughputB int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		durationsMs: make(map[string]int64),
		calls:       make(map[string]int64),
		errors:      make(map[string]int64),
		categories:  make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(name string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.durationsMs[name] += ms
	m.calls[name]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

func (m *InMemoryMetrics) RecordError(name string, category string) {
	m.mu.Lock()
	m.errors[name]++
	m.categories[category]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		DurationsMs:      copyCounts(m.durationsMs),
		Calls:            copyCounts(m.calls),
		Errors:           copyCounts(m.errors),
		ErrorCategories:  copyCounts(m.categories),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	DurationsMs      map[string]int64
	Calls            map[string]int64
	Errors           map[string]int64
	ErrorCategories  map[string]int64
	TotalThroughputB int64
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds strategy events into a MetricsCollector.  Names are
// prefixed with "strategy." to keep them apart from remote calls.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStrategy(context.Context, string, core.Source) {}

func (h *MetricsHook) AfterStrategy(_ context.Context, name string, out *core.EncodedImage, d time.Duration, err error) {
	key := "strategy." + name
	h.collector.RecordProcessingTime(key, d)
	if err != nil {
		h.collector.RecordError(key, string(CategoryOf(err)))
		return
	}
	if out != nil {
		h.collector.RecordThroughput(int64(out.Size()))
	}
}

// CategoryOf returns the error category of err, or "pipeline" when it carries
// none.
func CategoryOf(err error) apperrors.Category {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if _, ok := apperrors.AsRemote(err); ok {
		return apperrors.CategoryRemote
	}
	return apperrors.CategoryPipeline
}

var (
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
