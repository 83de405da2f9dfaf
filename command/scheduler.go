package command

import (
	"context"
	"fmt"
	"strings"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// CronCommand is anything that can be registered on a Scheduler.
type CronCommand interface {
	CronHandler() func() error
	CronOptions() gcmd.HandlerConfig
}

// Scheduler triggers cron commands. Expressions accept an optional leading
// seconds field. A job still running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger snapshot.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger snapshot.Logger) *Scheduler {
	if logger == nil {
		logger = snapshot.NopLogger{}
	}
	bridge := cronLogger{logger: logger}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(bridge),
			cron.WithChain(cron.Recover(bridge), cron.SkipIfStillRunning(bridge)),
		),
		logger: logger,
	}
}

// Register adds cmd using its cron expression.
func (s *Scheduler) Register(name string, cmd CronCommand) (cron.EntryID, error) {
	if s == nil || s.cron == nil {
		return 0, errors.New("scheduler is not configured", errors.CategoryInternal).
			WithTextCode("SCHEDULER_NIL")
	}
	if cmd == nil {
		return 0, errors.New("cron command is required", errors.CategoryValidation).
			WithTextCode("CRON_COMMAND_REQUIRED")
	}
	expr := strings.TrimSpace(cmd.CronOptions().Expression)
	if expr == "" {
		return 0, errors.New(fmt.Sprintf("cron expression for %q is empty", name), errors.CategoryValidation).
			WithTextCode("CRON_EXPRESSION_REQUIRED")
	}

	handler := cmd.CronHandler()
	id, err := s.cron.AddFunc(expr, func() {
		if err := handler(); err != nil {
			s.logger.Errorf("scheduled %s failed: %v", name, err)
		}
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryValidation, fmt.Sprintf("cron expression %q is invalid", expr)).
			WithTextCode("CRON_EXPRESSION_INVALID")
	}
	s.logger.Infof("scheduled %s with %q", name, expr)
	return id, nil
}

// Entries returns the registered entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new ticks and waits for running jobs or ctx, whichever ends
// first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger snapshot.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugf("cron: %s%s", msg, formatKeysAndValues(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorf("cron: %s: %v%s", msg, err, formatKeysAndValues(keysAndValues))
}

func formatKeysAndValues(keysAndValues []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}
