package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/robfig/cron"
)

// Scheduler drives discovery: every tick it pulls due posts from the
// store and hands each one to the dispatcher. Dispatches run on their own
// goroutines, so a slow publish never stalls the next tick; the claim in
// the dispatcher keeps a post from being attempted twice.
type Scheduler struct {
	posts        repository.PostRepository
	dispatcher   *Dispatcher
	tickInterval time.Duration
	reclaimAfter time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(posts repository.PostRepository, dispatcher *Dispatcher, tickInterval, reclaimAfter time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if reclaimAfter <= 0 {
		reclaimAfter = 10 * time.Minute
	}
	return &Scheduler{
		posts:        posts,
		dispatcher:   dispatcher,
		tickInterval: tickInterval,
		reclaimAfter: reclaimAfter,
	}
}

// Start begins the tick loop. Calling it while running is a logged no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		slog.Info("scheduler already running")
		return nil
	}

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", s.tickInterval), s.RunTick); err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	slog.Info("scheduler started", "tick", s.tickInterval.String())
	return nil
}

// Stop cancels future ticks. Dispatches already in flight run to
// completion and persist their own final state. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.cron = nil
	s.running = false
	slog.Info("scheduler stopped")
}

// Status reports the running flag and, when running, the next tick time.
func (s *Scheduler) Status() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return false, time.Time{}
	}

	var next time.Time
	for _, entry := range s.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return true, next
}

// RunTick performs one discovery pass. A store failure aborts this cycle
// only; the next tick starts fresh.
func (s *Scheduler) RunTick() {
	ctx := context.Background()
	now := time.Now()

	s.reclaimStuckPosts(ctx, now)

	duePosts, err := s.posts.GetDue(ctx, now, MaxRetries)
	if err != nil {
		slog.Error("failed to query due posts", "error", err.Error())
		return
	}
	if len(duePosts) == 0 {
		return
	}

	// The store may hand back duplicates; a post dispatches once per tick.
	seen := make(map[int64]struct{}, len(duePosts))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)

	for _, post := range duePosts {
		if _, ok := seen[post.ID]; ok {
			continue
		}
		seen[post.ID] = struct{}{}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := s.dispatcher.PublishPost(ctx, post); err != nil {
				if errors.Is(err, ErrAlreadyClaimed) {
					return
				}
				slog.Error("dispatch failed", "post_id", post.ID, "error", err.Error())
			}
		}(post)
	}

	wg.Wait()
}

func (s *Scheduler) reclaimStuckPosts(ctx context.Context, now time.Time) {
	stale, err := s.posts.GetStalePosting(ctx, now.Add(-s.reclaimAfter))
	if err != nil {
		slog.Error("failed to query stuck posting posts", "error", err.Error())
		return
	}

	for _, post := range stale {
		if err := s.dispatcher.ReclaimStale(ctx, post); err != nil {
			slog.Error("failed to reclaim post", "post_id", post.ID, "error", err.Error())
		}
	}
}
