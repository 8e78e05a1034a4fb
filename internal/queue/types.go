package queue

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Terminal reports whether a submission in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDead
}

// Submission is one check-in attempt series for a profile. A row lives from
// enqueue until it goes terminal and is later pruned.
type Submission struct {
	ID          string
	Profile     string
	Origin      string
	Status      Status
	Attempt     int
	MaxAttempts int
	DedupeKey   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
	LastError   *string
}

type EnqueueRequest struct {
	Profile     string
	Origin      string
	MaxAttempts int
	DedupeKey   *string
}

// Origins recorded on submissions.
const (
	OriginScheduled = "scheduled"
	OriginManual    = "manual"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// DedupeDropError is returned by Enqueue when an active submission already
// holds the same dedupe key.
type DedupeDropError struct {
	DedupeKey  string
	ExistingID string
}

func (e *DedupeDropError) Error() string {
	return fmt.Sprintf("submission with dedupe key %q already active (id %s)", e.DedupeKey, e.ExistingID)
}

// DailyDedupeKey builds the key that limits a profile to one submission per
// local calendar day.
func DailyDedupeKey(profile string, day time.Time) string {
	return fmt.Sprintf("daily:%s:%s", profile, day.Format("2006-01-02"))
}
