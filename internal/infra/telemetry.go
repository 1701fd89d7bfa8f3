package infra

import (
	"sort"

	"go.uber.org/zap"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// NopSink discards telemetry. The default when no sink is wired.
type NopSink struct{}

// Report does nothing.
func (NopSink) Report(string, map[string]string) {}

// LogSink emits telemetry events through a zap logger. Fire-and-forget:
// nothing here can fail in a way the caller sees.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logger-backed telemetry sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Report logs the event with its fields in stable order.
func (s *LogSink) Report(event string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zfields := make([]zap.Field, 0, len(fields)+1)
	zfields = append(zfields, zap.String("event", event))
	for _, k := range keys {
		zfields = append(zfields, zap.String(k, fields[k]))
	}
	s.logger.Info("telemetry", zfields...)
}

// Ensure both sinks implement domain.TelemetrySink.
var (
	_ domain.TelemetrySink = NopSink{}
	_ domain.TelemetrySink = (*LogSink)(nil)
)
