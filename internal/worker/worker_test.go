package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/queue"
	submitmocks "rollcall/internal/submit/mocks"
	"rollcall/internal/worker/mocks"
)

func newTestSlogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func collectEvents(t *testing.T, sub <-chan events.Event, n int) []events.Event {
	t.Helper()
	var got []events.Event
	for range n {
		select {
		case ev := <-sub:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	return got
}

func TestProcessNextEmptyQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, _ := newTestSlogger()

	w := New(config.Defaults(), mockQueue, mockSubmitter, events.NewHub(32), slogger)
	ctx := context.Background()

	mockQueue.EXPECT().Dequeue(ctx).Return(nil, nil)
	assert.NoError(t, w.processNext(ctx))
}

func TestProcessNextDequeueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, _ := newTestSlogger()

	w := New(config.Defaults(), mockQueue, mockSubmitter, events.NewHub(32), slogger)
	ctx := context.Background()

	mockQueue.EXPECT().Dequeue(ctx).Return(nil, errors.New("db locked"))
	assert.Error(t, w.processNext(ctx))
}

func TestRunSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, logBuf := newTestSlogger()
	cfg := config.Defaults()
	hub := events.NewHub(64)

	w := New(cfg, mockQueue, mockSubmitter, hub, slogger)
	ctx := context.Background()

	sub := &queue.Submission{
		ID: "sub-1", Profile: "alice", Origin: queue.OriginScheduled,
		Attempt: 1, MaxAttempts: 3, Status: queue.StatusRunning,
	}

	mockQueue.EXPECT().Dequeue(ctx).Return(sub, nil)
	mockSubmitter.EXPECT().Submit(gomock.Any(), "alice").Return(nil)
	mockQueue.EXPECT().CompleteAttempt(ctx, "sub-1", nil, cfg.Retry.Backoff).
		Return(queue.StatusSucceeded, nil)

	evCh, cancelSub := hub.Subscribe()
	defer cancelSub()

	assert.NoError(t, w.processNext(ctx))

	got := collectEvents(t, evCh, 2)
	assert.Equal(t, events.TypeSubmissionStarted, got[0].Type)
	assert.Equal(t, events.TypeSubmissionSuccess, got[1].Type)
	assert.Contains(t, logBuf.String(), "submission succeeded")
}

func TestRunFailureSchedulesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, logBuf := newTestSlogger()
	cfg := config.Defaults()
	hub := events.NewHub(64)

	w := New(cfg, mockQueue, mockSubmitter, hub, slogger)
	ctx := context.Background()

	sub := &queue.Submission{
		ID: "sub-2", Profile: "alice", Origin: queue.OriginManual,
		Attempt: 1, MaxAttempts: 3, Status: queue.StatusRunning,
	}

	mockQueue.EXPECT().Dequeue(ctx).Return(sub, nil)
	mockSubmitter.EXPECT().Submit(gomock.Any(), "alice").Return(errors.New("form not ready"))
	mockQueue.EXPECT().CompleteAttempt(ctx, "sub-2", gomock.Any(), cfg.Retry.Backoff).
		DoAndReturn(func(_ context.Context, _ string, errMsg *string, _ time.Duration) (queue.Status, error) {
			assert.NotNil(t, errMsg)
			assert.Equal(t, "form not ready", *errMsg)
			return queue.StatusQueued, nil
		})

	evCh, cancelSub := hub.Subscribe()
	defer cancelSub()

	assert.NoError(t, w.processNext(ctx))

	got := collectEvents(t, evCh, 2)
	assert.Equal(t, events.TypeSubmissionStarted, got[0].Type)
	assert.Equal(t, events.TypeSubmissionRetry, got[1].Type)
	assert.Contains(t, logBuf.String(), "retry scheduled")
}

func TestRunTerminalFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, logBuf := newTestSlogger()
	hub := events.NewHub(64)

	w := New(config.Defaults(), mockQueue, mockSubmitter, hub, slogger)
	ctx := context.Background()

	// Final attempt announces itself as a retry attempt, not a fresh start.
	sub := &queue.Submission{
		ID: "sub-3", Profile: "bob", Origin: queue.OriginScheduled,
		Attempt: 3, MaxAttempts: 3, Status: queue.StatusRunning,
	}

	mockQueue.EXPECT().Dequeue(ctx).Return(sub, nil)
	mockSubmitter.EXPECT().Submit(gomock.Any(), "bob").Return(errors.New("no success marker"))
	mockQueue.EXPECT().CompleteAttempt(ctx, "sub-3", gomock.Any(), gomock.Any()).
		Return(queue.StatusFailed, nil)

	evCh, cancelSub := hub.Subscribe()
	defer cancelSub()

	assert.NoError(t, w.processNext(ctx))

	got := collectEvents(t, evCh, 2)
	assert.Equal(t, events.TypeSubmissionAttempt, got[0].Type)
	assert.Equal(t, events.TypeSubmissionFailed, got[1].Type)
	assert.Contains(t, logBuf.String(), "failed terminally")
}

func TestRunCompleteAttemptErrorLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, logBuf := newTestSlogger()

	w := New(config.Defaults(), mockQueue, mockSubmitter, events.NewHub(32), slogger)
	ctx := context.Background()

	sub := &queue.Submission{ID: "sub-4", Profile: "alice", Attempt: 1, MaxAttempts: 3}

	mockQueue.EXPECT().Dequeue(ctx).Return(sub, nil)
	mockSubmitter.EXPECT().Submit(gomock.Any(), "alice").Return(nil)
	mockQueue.EXPECT().CompleteAttempt(ctx, "sub-4", nil, gomock.Any()).
		Return(queue.Status(""), errors.New("db gone"))

	assert.NoError(t, w.processNext(ctx))
	assert.Contains(t, logBuf.String(), "failed to record attempt outcome")
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	mockSubmitter := submitmocks.NewMockSubmitter(ctrl)
	slogger, _ := newTestSlogger()

	w := New(config.Defaults(), mockQueue, mockSubmitter, events.NewHub(32), slogger)
	mockQueue.EXPECT().Dequeue(gomock.Any()).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestSetConfigChangesBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	slogger, _ := newTestSlogger()
	w := New(config.Defaults(), mocks.NewMockQueueService(ctrl), submitmocks.NewMockSubmitter(ctrl), events.NewHub(32), slogger)

	next := config.Defaults()
	next.Retry.Backoff = 90 * time.Second
	w.SetConfig(next)

	assert.Equal(t, 90*time.Second, w.backoff())
}
