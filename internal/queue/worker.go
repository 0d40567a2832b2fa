package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Source is the part of Queue a Worker consumes.
type Source interface {
	PopJob(ctx context.Context, timeout time.Duration) (*Job, error)
	PushResult(ctx context.Context, res *Result) error
}

// Handler runs one job. It always returns a Result; failures are reported
// in Result.Error.
type Handler func(ctx context.Context, job *Job) *Result

// Worker pops jobs from a Source until it is stopped.
type Worker struct {
	name       string
	src        Source
	handle     Handler
	poll       time.Duration
	retryDelay time.Duration
	log        *slog.Logger

	processed int
	failed    int
}

// NewWorker creates a worker. poll is the blocking pop timeout; a Stop job
// or context cancellation ends Run.
func NewWorker(name string, src Source, handle Handler, poll time.Duration, log *slog.Logger) *Worker {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		name:       name,
		src:        src,
		handle:     handle,
		poll:       poll,
		retryDelay: time.Second,
		log:        log.With("worker", name),
	}
}

// Run processes jobs until a Stop job arrives, returning nil, or ctx is
// cancelled, returning ctx.Err(). Pop and push failures are logged and
// retried after a short delay.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("queue: worker started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.src.PopJob(ctx, w.poll)
		switch {
		case err != nil:
			if errors.Is(err, ErrClosed) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("queue: pop failed", "err", err)
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		case job == nil:
			w.log.Debug("queue: no job available")
			continue
		case job.Stop:
			w.log.Info("queue: worker stopped", "processed", w.processed, "failed", w.failed)
			return nil
		}

		res := w.handle(ctx, job)
		res.ID = job.ID
		res.Worker = w.name
		w.processed++
		if res.Failed() {
			w.failed++
			w.log.Warn("queue: job failed", "id", job.ID, "err", res.Error)
		} else {
			w.log.Debug("queue: job done", "id", job.ID, "duration", res.Duration)
		}

		for {
			err := w.src.PushResult(ctx, res)
			if err == nil {
				break
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			w.log.Warn("queue: push result failed", "id", job.ID, "err", err)
			if !w.sleep(ctx) {
				return ctx.Err()
			}
		}
	}
}

// Processed returns the number of jobs handled, failed ones included.
func (w *Worker) Processed() int { return w.processed }

// Failed returns the number of jobs whose result carries an error.
func (w *Worker) Failed() int { return w.failed }

func (w *Worker) sleep(ctx context.Context) bool {
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
