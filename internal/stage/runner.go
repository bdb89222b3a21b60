// Package stage runs one pipeline step against an external collaborator
// and turns every way that call can go wrong into a value.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/metrics"
	"github.com/raphaelgruber/lecturelens/internal/models"
)

// Failure records which stage failed and why.
type Failure struct {
	Stage   models.Stage
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Stage, f.Message)
}

// Outcome is either a value or a failure, never both.
type Outcome[T any] struct {
	Value   T
	Failure *Failure
}

// OK reports whether the step produced a value.
func (o Outcome[T]) OK() bool { return o.Failure == nil }

// Call describes one invocation.
type Call struct {
	// Stage is reported on failure.
	Stage models.Stage
	// Name labels logs and metrics; defaults to Stage.
	Name    string
	TaskID  string
	Timeout time.Duration
}

func (s Call) name() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Stage)
}

// Runner carries the shared logger and metrics for stage invocations.
type Runner struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewRunner creates a runner. Both arguments may be nil.
func NewRunner(logger *slog.Logger, m *metrics.Collector) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, metrics: m}
}

// Run invokes fn under call.Timeout. If fn ignores its context it is
// abandoned once the deadline passes; its eventual result is discarded.
// Panics inside fn become failures.
func Run[T any](ctx context.Context, r *Runner, call Call, fn func(context.Context) (T, error)) Outcome[T] {
	if r == nil {
		r = NewRunner(nil, nil)
	}
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	elapsed := time.Since(start)
	r.metrics.RecordTiming(metrics.StagePrefix+call.name(), elapsed)

	if res.err != nil {
		msg := describe(res.err, call.Timeout)
		r.logger.Warn("stage failed",
			"task_id", call.TaskID,
			"stage", call.name(),
			"duration_ms", elapsed.Milliseconds(),
			"error", res.err,
		)
		return Outcome[T]{Failure: &Failure{Stage: call.Stage, Message: msg}}
	}

	r.logger.Debug("stage finished",
		"task_id", call.TaskID,
		"stage", call.name(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return Outcome[T]{Value: res.value}
}

func describe(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
