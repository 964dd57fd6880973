package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ElementBaths/parsedmarc/internal/log"
	"github.com/ElementBaths/parsedmarc/internal/model"
	"github.com/ElementBaths/parsedmarc/internal/notify"
)

const (
	exitLaunchFailed = 127 // primary executable could not be started
	exitLockHeld     = 75  // EX_TEMPFAIL: a previous run still holds the lock
)

// FailureNotifier delivers a best-effort notification about a failed
// primary task. An error means the attempt could not even be made
// (missing or incomplete credentials); a DeliveryResult with OK false
// means the single delivery attempt failed.
type FailureNotifier interface {
	Notify(ctx context.Context, exitCode int, synopsis string) (notify.DeliveryResult, error)
}

// Supervisor runs one linear pipeline pass: primary task, then on success
// the best-effort secondary task, or on failure the best-effort
// notification. Its return value is the process exit status and mirrors
// the primary task's exit code; every other failure is absorbed into
// log severity.
type Supervisor struct {
	primary      Command
	secondary    Command
	summaryLines int
	failureLines int
	synopsis     SynopsisOptions
	lock         string
	notifier     FailureNotifier
	runner       Runner
	emit         *Emitter
}

func NewSupervisor(cfg model.Config, em *Emitter, notifier FailureNotifier) (*Supervisor, error) {
	primary, err := commandFromTask(cfg.Pipeline.Primary)
	if err != nil {
		return nil, fmt.Errorf("pipeline.primary: %w", err)
	}
	secondary, err := commandFromTask(cfg.Pipeline.Secondary)
	if err != nil {
		return nil, fmt.Errorf("pipeline.secondary: %w", err)
	}

	return &Supervisor{
		primary:      primary,
		secondary:    secondary,
		summaryLines: cfg.Pipeline.SummaryLines,
		failureLines: cfg.Pipeline.FailureLines,
		synopsis:     SynopsisOptionsFromConfig(cfg.Pipeline),
		lock:         cfg.Service.Lock,
		notifier:     notifier,
		emit:         em,
	}, nil
}

func commandFromTask(t model.Task) (Command, error) {
	timeout, err := t.TimeoutDuration()
	if err != nil {
		return Command{}, fmt.Errorf("parsing timeout: %w", err)
	}
	return Command{
		Path:    t.Path,
		Args:    t.Args,
		Timeout: timeout,
	}, nil
}

// Run executes one pipeline pass and returns the process exit status.
func (s *Supervisor) Run(ctx context.Context) int {
	ctx = log.ContextAttrs(ctx, slog.Group("pipeline",
		slog.String("run_id", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	))

	if s.lock != "" {
		release, err := acquireLock(s.lock)
		if err != nil {
			s.emit.Emit(ctx, SeverityError, fmt.Sprintf("another run appears active: %v", err))
			return exitLockHeld
		}
		defer release()
	}

	res, err := s.runner.Run(ctx, s.primary)
	if err != nil {
		s.emit.Emit(ctx, SeverityError, fmt.Sprintf("primary task could not be started: %v", err))
		return exitLaunchFailed
	}
	if res.ExitCode != 0 {
		return s.failure(ctx, res)
	}
	s.success(ctx, res)
	return 0
}

func (s *Supervisor) success(ctx context.Context, res Result) {
	s.emit.Emit(ctx, SeverityInfo, "primary task completed: exit code 0")
	s.emit.Emit(ctx, SeverityInfo, fmt.Sprintf("captured %d lines of output", len(res.Lines)))
	s.summarize(ctx, SeverityInfo, "primary", tail(res.Lines, s.summaryLines))

	sec, err := s.runner.Run(ctx, s.secondary)
	switch {
	case err != nil:
		s.emit.Emit(ctx, SeverityWarning, fmt.Sprintf("secondary task could not be started: %v", err))
	case sec.ExitCode != 0:
		s.emit.Emit(ctx, SeverityWarning, fmt.Sprintf("secondary task failed: exit code %d", sec.ExitCode))
		s.emit.EmitLines(ctx, SeverityWarning, tail(sec.Lines, s.failureLines))
	default:
		s.summarize(ctx, SeverityInfo, "secondary", tail(sec.Lines, s.summaryLines))
	}

	s.finish(ctx)
}

func (s *Supervisor) failure(ctx context.Context, res Result) int {
	s.emit.Emit(ctx, SeverityError, fmt.Sprintf("primary task failed: exit code %d", res.ExitCode))

	// full output, this is the only postmortem record of the failure
	s.emit.Emit(ctx, SeverityError, "--- begin primary output ---")
	s.emit.EmitLines(ctx, SeverityError, res.Lines)
	s.emit.Emit(ctx, SeverityError, "--- end primary output ---")

	if s.notifier != nil {
		synopsis := Sanitize(Synopsis(res.Lines, s.synopsis))
		result, err := s.notifier.Notify(ctx, res.ExitCode, synopsis)
		switch {
		case err != nil:
			s.emit.Emit(ctx, SeverityError, fmt.Sprintf("failure notification not attempted: %v", err))
		case !result.OK:
			s.emit.Emit(ctx, SeverityError, "failure notification not delivered: "+result.Detail)
		default:
			s.emit.Emit(ctx, SeverityInfo, "failure notification delivered")
		}
	}

	s.finish(ctx)
	return res.ExitCode
}

func (s *Supervisor) summarize(ctx context.Context, sev Severity, stage string, lines []string) {
	s.emit.Emit(ctx, sev, fmt.Sprintf("--- begin %s output summary ---", stage))
	s.emit.EmitLines(ctx, sev, lines)
	s.emit.Emit(ctx, sev, fmt.Sprintf("--- end %s output summary ---", stage))
}

func (s *Supervisor) finish(ctx context.Context) {
	s.emit.Emit(ctx, SeverityInfo, "pipeline finished at "+time.Now().UTC().Format(time.RFC3339))
}
