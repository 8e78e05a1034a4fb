package scheduler

import (
	"context"
	"time"

	"rollcall/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks rollcall/internal/scheduler QueueService

// QueueService defines the interface for queue operations used by the scheduler.
type QueueService interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
	Get(ctx context.Context, id string) (*queue.Submission, error)
	OutstandingFor(ctx context.Context, profile string) (int, error)
	RecoverOrphans(ctx context.Context) (int, error)
	PruneTerminal(ctx context.Context, retention time.Duration) error
}
