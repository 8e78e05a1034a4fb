package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/queue"
)

// Scheduler watches the wall clock and enqueues one check-in submission per
// enabled profile when the configured daily time arrives. The queue's dedupe
// key makes firing idempotent across ticks and restarts.
type Scheduler struct {
	mu      sync.Mutex
	cfg     *config.Config
	skipDay string
	noted   map[string]struct{}
	queue   QueueService
	events  *events.Hub
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a new Scheduler instance.
func New(cfg *config.Config, q QueueService, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:    cfg,
		noted:  make(map[string]struct{}),
		queue:  q,
		events: hub,
		logger: logger.With("component", "scheduler"),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start begins the scheduler's tick loop after crash recovery.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")

	n, err := s.queue.RecoverOrphans(ctx)
	if err != nil {
		return fmt.Errorf("scheduler crash recovery failed: %w", err)
	}
	if n > 0 {
		s.logger.Warn("Recovered submissions left running by an unclean shutdown", "count", n)
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// SetConfig swaps in a new configuration, typically after a live reload.
// Skip notes reset so a changed schedule gets a fresh decision.
func (s *Scheduler) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.skipDay = ""
	s.noted = make(map[string]struct{})
}

// NextRun returns the next time the daily schedule fires at hour:minute,
// relative to now. A fire time already past today rolls to tomorrow.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// tickLoop is the main scheduling loop.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial tick immediately
	s.tick(ctx)

	s.mu.Lock()
	interval := s.cfg.Service.TickInterval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Warn("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick performs a single scheduling pass.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.logger.Debug("Scheduler tick")
	s.events.Publish(events.TypeSchedulerTick, map[string]any{
		"at": now.UTC(),
	})

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.Schedule.Enabled {
		s.fireIfDue(ctx, cfg, now)
	}

	if cfg.Service.Retention > 0 {
		if err := s.queue.PruneTerminal(ctx, cfg.Service.Retention); err != nil {
			s.logger.Error("Failed to prune terminal submissions", "error", err)
		}
	}
}

// fireIfDue enqueues the day's submissions once the fire time has passed,
// unless it passed longer ago than the catch-up window allows.
func (s *Scheduler) fireIfDue(ctx context.Context, cfg *config.Config, now time.Time) {
	due := time.Date(now.Year(), now.Month(), now.Day(), cfg.Schedule.Hour, cfg.Schedule.Minute, 0, 0, now.Location())
	if now.Before(due) {
		return
	}

	day := now.Format("2006-01-02")
	if now.Sub(due) > cfg.Schedule.CatchUpWindow {
		s.mu.Lock()
		alreadyNoted := s.skipDay == day
		s.skipDay = day
		s.mu.Unlock()
		if !alreadyNoted {
			s.events.Publish(events.TypeSchedulerSkipped, map[string]any{
				"day":    day,
				"reason": "catch_up_window_elapsed",
			})
			s.logger.Warn("Daily fire time missed beyond catch-up window, skipping", "day", day, "due", due)
		}
		return
	}

	// Sort profile names for deterministic iteration (critical for testing)
	var profileNames []string
	for name := range cfg.Profiles {
		profileNames = append(profileNames, name)
	}
	sort.Strings(profileNames)

	for _, name := range profileNames {
		profile := cfg.Profiles[name]
		if !profile.Enabled {
			continue
		}
		if err := s.enqueueSubmission(ctx, cfg, name, now); err != nil {
			s.logger.Error("Failed to enqueue scheduled submission", "profile", name, "error", err)
		}
	}
}

// enqueueSubmission creates the day's queued submission for one profile. A
// profile with a live submission (a manual run in flight, say) is skipped so
// it never holds two live jobs, and a dedupe hit means today already fired.
// Either way one scheduler.skipped event per profile per day says why.
func (s *Scheduler) enqueueSubmission(ctx context.Context, cfg *config.Config, profileName string, now time.Time) error {
	day := now.Format("2006-01-02")

	outstanding, err := s.queue.OutstandingFor(ctx, profileName)
	if err != nil {
		return fmt.Errorf("check outstanding submissions for %s: %w", profileName, err)
	}
	if outstanding > 0 {
		if s.noteSkip(profileName, day, "submission_in_flight") {
			s.events.Publish(events.TypeSchedulerSkipped, map[string]any{
				"profile": profileName,
				"day":     day,
				"reason":  "submission_in_flight",
			})
			s.logger.Info("Skipped scheduled enqueue, a submission is already live", "profile", profileName)
		}
		return nil
	}

	dedupeKey := queue.DailyDedupeKey(profileName, now)

	req := queue.EnqueueRequest{
		Profile:     profileName,
		Origin:      queue.OriginScheduled,
		MaxAttempts: cfg.Retry.MaxAttempts,
		DedupeKey:   &dedupeKey,
	}

	id, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		var dedupeErr *queue.DedupeDropError
		if errors.As(err, &dedupeErr) {
			if s.noteSkip(profileName, day, "already_fired_today") {
				data := map[string]any{
					"profile":     profileName,
					"day":         day,
					"reason":      "already_fired_today",
					"existing_id": dedupeErr.ExistingID,
				}
				if existing, err := s.queue.Get(ctx, dedupeErr.ExistingID); err == nil {
					data["existing_status"] = string(existing.Status)
				}
				s.events.Publish(events.TypeSchedulerSkipped, data)
			}
			s.logger.Debug(
				"Skipped scheduled enqueue due to dedupe hit",
				"profile", profileName,
				"dedupe_key", dedupeErr.DedupeKey,
				"existing_id", dedupeErr.ExistingID,
			)
			return nil
		}
		return fmt.Errorf("enqueue submission for %s: %w", profileName, err)
	}

	s.events.Publish(events.TypeSchedulerScheduled, map[string]any{
		"submission_id": id,
		"profile":       profileName,
	})
	s.logger.Info("Enqueued scheduled submission", "profile", profileName, "submission_id", id, "dedupe_key", dedupeKey)
	return nil
}

// noteSkip records a per-profile-per-day skip note and reports whether this
// one is new. Old days fall out whenever a new day is noted.
func (s *Scheduler) noteSkip(profile, day, reason string) bool {
	key := day + "|" + profile + "|" + reason
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.noted[key]; ok {
		return false
	}
	for k := range s.noted {
		if !strings.HasPrefix(k, day+"|") {
			delete(s.noted, k)
		}
	}
	s.noted[key] = struct{}{}
	return true
}
