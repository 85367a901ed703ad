// Package worker implements the Worker Loop (C8): a single-task,
// long-running process per language that blocking-pops job ids from its
// queue, claims, executes, and transitions each job to a terminal state.
// Grounded on the teacher's long-running ingest loop
// (internal/services/jobmanager/manager.go's poll loop) for the
// blocking-pop/backoff/publish shape, re-pointed at the sandbox contract
// instead of a market-data fetch.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codr-run/codr/internal/apierr"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/interfaces"
	"github.com/codr-run/codr/internal/models"
	"github.com/codr-run/codr/internal/resultsvc"
)

const (
	popTimeout   = 30 * time.Second
	maxIdleTotal = 120 * time.Second
	maxRetries   = 5
	baseBackoff  = 2 * time.Second
)

// Clock lets tests control elapsed-time measurement.
type Clock func() time.Time

// Loop is one language-specialized worker process's main loop.
type Loop struct {
	language string
	store    interfaces.JobStore
	broker   interfaces.Broker
	sandbox  interfaces.Sandbox
	logger   *common.Logger
	now      Clock
}

// New constructs a Worker Loop for the given language.
func New(language string, store interfaces.JobStore, b interfaces.Broker, sandbox interfaces.Sandbox, logger *common.Logger) *Loop {
	return &Loop{language: language, store: store, broker: b, sandbox: sandbox, logger: logger, now: time.Now}
}

// Run executes the blocking-pop loop until ctx is cancelled or the
// queue has been idle for longer than maxIdleTotal (spec.md §4.8: "if
// nothing for > MAX_IDLE (default 120s total): exit").
func (l *Loop) Run(ctx context.Context) error {
	idleSince := l.now()
	queue := broker.QueueKey(l.language)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		jobID, err := l.popWithBackoff(ctx, queue)
		if err != nil {
			return err
		}

		if jobID == "" {
			if l.now().Sub(idleSince) > maxIdleTotal {
				if l.logger != nil {
					l.logger.Info().Str("language", l.language).Msg("worker: idle timeout exceeded, exiting")
				}
				return nil
			}
			continue
		}
		idleSince = l.now()

		l.processJob(ctx, jobID)
	}
}

// popWithBackoff blocking-pops one job id, retrying transient broker
// errors with exponential backoff (2s, 4s, ... up to 5 attempts) before
// propagating a hard failure. A plain timeout (empty jobID, nil error)
// is the normal empty-queue outcome and is returned immediately.
func (l *Loop) popWithBackoff(ctx context.Context, queue string) (string, error) {
	backoff := baseBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		jobID, err := l.broker.BlockingRightPop(ctx, queue, popTimeout)
		if err == nil {
			return jobID, nil
		}
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.BrokerUnavailable {
			if l.logger != nil {
				l.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("worker: broker transport error, backing off")
			}
			select {
			case <-ctx.Done():
				return "", nil
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("worker: broker unavailable after %d attempts", maxRetries)
}

// processJob runs one job through claim, execute, terminal-transition,
// exactly the pseudocode of spec.md §4.8. Any error — syntactic,
// missing record, language mismatch, or sandbox failure — is handled
// without ever crashing the loop.
func (l *Loop) processJob(ctx context.Context, jobID string) {
	if !resultsvc.ValidJobID(jobID) {
		if l.logger != nil {
			l.logger.Warn().Str("job_id", jobID).Msg("worker: syntactically invalid job id, skipping")
		}
		return
	}

	job, err := l.store.Get(ctx, jobID)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: failed to load job, skipping")
		}
		return
	}
	if job == nil || string(job.Language) != l.language {
		return
	}

	if err := l.store.Transition(ctx, jobID, models.StatusProcessing, nil); err != nil {
		if l.logger != nil {
			l.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: failed to transition to processing")
		}
		return
	}
	l.publish(ctx, jobID, models.NewStatusUpdate(models.StatusProcessing, l.now().Unix()))

	t0 := l.now()
	result, execErr := l.executeSafely(ctx, job)

	if execErr != nil {
		l.fail(ctx, jobID, execErr)
		return
	}

	result.ExecutionTime = l.now().Sub(t0).Seconds()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		l.fail(ctx, jobID, err)
		return
	}

	extra := map[string]any{
		"result":       string(resultJSON),
		"completed_at": l.now().Unix(),
	}
	if err := l.store.Transition(ctx, jobID, models.StatusCompleted, extra); err != nil {
		if l.logger != nil {
			l.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: failed to transition to completed")
		}
		return
	}
	update := models.NewStatusUpdate(models.StatusCompleted, l.now().Unix())
	update.Result = result
	l.publish(ctx, jobID, update)
}

// executeSafely wraps the sandbox call so that any panic or error maps
// to a failed terminal transition rather than crashing the worker
// (spec.md §4.8: "Sandbox invocation must be wrapped so that any
// exception maps to a failed terminal transition").
func (l *Loop) executeSafely(ctx context.Context, job *models.Job) (result *models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: sandbox panic: %v", r)
		}
	}()

	execResult, execErr := l.sandbox.Execute(ctx, job.Code, job.Filename, string(job.Language))
	if execErr != nil {
		return nil, execErr
	}
	return &models.Result{
		Success:      execResult.Success,
		Stdout:       execResult.Stdout,
		Stderr:       execResult.Stderr,
		ExitCode:     execResult.ExitCode,
		TimedOut:     execResult.TimedOut,
		MemoryUsedKB: execResult.MemoryUsedKB,
	}, nil
}

// fail transitions jobID to failed with err's message (spec.md §4.8's
// catch clause). This is the canonical outcome even when the sandbox
// itself reported success but a later serialization/communication step
// failed — the Result Service may reconcile via self-heal (§9).
func (l *Loop) fail(ctx context.Context, jobID string, execErr error) {
	msg := execErr.Error()
	if err := l.store.Transition(ctx, jobID, models.StatusFailed, map[string]any{"error": msg}); err != nil && l.logger != nil {
		l.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: failed to transition to failed")
	}
	l.publish(ctx, jobID, models.StatusUpdate{Type: "status_update", Status: models.StatusFailed, Error: msg, Ts: l.now().Unix()})
}

// publish best-effort broadcasts a status update; a publish failure
// never fails the job — the Result Service remains the source of truth.
func (l *Loop) publish(ctx context.Context, jobID string, update models.StatusUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	if err := l.broker.Publish(ctx, broker.UpdatesChannel(jobID), data); err != nil && l.logger != nil {
		l.logger.Debug().Err(err).Str("job_id", jobID).Msg("worker: publish failed, stream subscribers will miss this update")
	}
}
