package pipeline

import (
	"context"
	"log/slog"
	"strings"
)

// Severity of a single forwarded log record.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) level() slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Emitter forwards log records to the external sink, tagged with a fixed
// component identifier. A record never carries an embedded line break:
// multi-line messages are split before emission. Emission never fails
// the caller.
type Emitter struct {
	tag    string
	logger *slog.Logger
}

func NewEmitter(tag string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{tag: tag, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, sev Severity, msg string) {
	msg = strings.TrimSuffix(msg, "\n")
	if strings.ContainsRune(msg, '\n') {
		e.EmitLines(ctx, sev, strings.Split(msg, "\n"))
		return
	}
	e.logger.LogAttrs(ctx, sev.level(), msg, slog.String("tag", e.tag))
}

func (e *Emitter) EmitLines(ctx context.Context, sev Severity, lines []string) {
	for _, line := range lines {
		e.Emit(ctx, sev, line)
	}
}
