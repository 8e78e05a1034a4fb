// Package worker drains the submission queue, one check-in at a time. The
// browser is a heavyweight resource, so attempts never run concurrently.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/queue"
	"rollcall/internal/submit"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks rollcall/internal/worker QueueService

const (
	// pollInterval is how often the worker checks for due submissions.
	pollInterval = 1 * time.Second

	// attemptTimeout bounds one full fill-submit-verify cycle, browser
	// launch included.
	attemptTimeout = 3 * time.Minute
)

// QueueService defines the queue operations the worker needs.
type QueueService interface {
	Dequeue(ctx context.Context) (*queue.Submission, error)
	CompleteAttempt(ctx context.Context, id string, attemptErr *string, backoff time.Duration) (queue.Status, error)
}

// Worker runs dequeued submissions through a Submitter and records outcomes.
type Worker struct {
	mu        sync.Mutex
	cfg       *config.Config
	queue     QueueService
	submitter submit.Submitter
	events    *events.Hub
	logger    *slog.Logger
}

// New creates a Worker.
func New(cfg *config.Config, q QueueService, s submit.Submitter, hub *events.Hub, logger *slog.Logger) *Worker {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Worker{
		cfg:       cfg,
		queue:     q,
		submitter: s,
		events:    hub,
		logger:    logger.With("component", "worker"),
	}
}

// SetConfig swaps in a new configuration after a live reload.
func (w *Worker) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
}

func (w *Worker) backoff() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Retry.Backoff
}

// Start runs the worker loop. It dequeues submissions serially and blocks
// until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker loop started")
	defer w.logger.Info("worker loop stopped")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.processNext(ctx); err != nil {
				w.logger.Error("failed to process submission", "error", err)
			}
		}
	}
}

// processNext dequeues and runs at most one submission.
func (w *Worker) processNext(ctx context.Context) error {
	sub, err := w.queue.Dequeue(ctx)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	w.run(ctx, sub)
	return nil
}

// run executes one attempt for a dequeued submission.
func (w *Worker) run(ctx context.Context, sub *queue.Submission) {
	logger := w.logger.With("submission_id", sub.ID, "profile", sub.Profile)
	logger.Info("executing submission", "attempt", sub.Attempt, "max_attempts", sub.MaxAttempts)

	eventType := events.TypeSubmissionStarted
	if sub.Attempt > 1 {
		eventType = events.TypeSubmissionAttempt
	}
	w.events.Publish(eventType, map[string]any{
		"submission_id": sub.ID,
		"profile":       sub.Profile,
		"origin":        sub.Origin,
		"attempt":       sub.Attempt,
		"max_attempts":  sub.MaxAttempts,
	})

	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	submitErr := w.submitter.Submit(attemptCtx, sub.Profile)
	cancel()

	var errMsg *string
	if submitErr != nil {
		msg := submitErr.Error()
		errMsg = &msg
	}

	status, err := w.queue.CompleteAttempt(ctx, sub.ID, errMsg, w.backoff())
	if err != nil {
		logger.Error("failed to record attempt outcome", "error", err)
		return
	}

	switch status {
	case queue.StatusSucceeded:
		logger.Info("submission succeeded", "attempt", sub.Attempt)
		w.events.Publish(events.TypeSubmissionSuccess, map[string]any{
			"submission_id": sub.ID,
			"profile":       sub.Profile,
			"attempt":       sub.Attempt,
		})
	case queue.StatusQueued:
		logger.Warn("attempt failed, retry scheduled",
			"attempt", sub.Attempt, "error", *errMsg, "backoff", w.backoff())
		w.events.Publish(events.TypeSubmissionRetry, map[string]any{
			"submission_id": sub.ID,
			"profile":       sub.Profile,
			"attempt":       sub.Attempt,
			"error":         *errMsg,
		})
	default:
		logger.Error("submission failed terminally", "attempt", sub.Attempt, "error", *errMsg)
		w.events.Publish(events.TypeSubmissionFailed, map[string]any{
			"submission_id": sub.ID,
			"profile":       sub.Profile,
			"attempt":       sub.Attempt,
			"error":         *errMsg,
		})
	}
}
