// Package scheduler runs the long-running due-selection loop and dispatches
// concurrent per-feed workers (spec.md §4.6). Grounded on polling/polling.go's
// StartPolling/StopPolling/pollLoop shape — a generation-counter map guarding
// against duplicate in-flight work and a panic-recovering per-task
// goroutine — repurposed here from "one goroutine per service, forever" to
// "one goroutine per due subscription, per tick".
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/feedbot/internal/metrics"
	"github.com/matrix-org/feedbot/internal/store"
	"github.com/matrix-org/feedbot/internal/worker"
)

const (
	tickInterval     = 30 * time.Second
	pruneInterval    = 24 * time.Hour
	journalRetention = 90
)

// Store is the subset of *store.Store the scheduler itself needs; per-feed
// workers receive the narrower worker.Store.
type Store interface {
	worker.Store
	DueSubscriptions(now time.Time) ([]store.Subscription, error)
	PruneJournal(olderThanDays int) (int64, error)
	CountSubscriptions() (int, error)
}

// Scheduler owns the tick loop. Safe to Run once; not restartable.
type Scheduler struct {
	store   Store
	fetcher worker.Fetcher
	sink    worker.Sink
	limits  worker.Limits

	mu       sync.Mutex
	inFlight map[int64]bool

	lastPrune time.Time
}

func New(st Store, fetcher worker.Fetcher, sink worker.Sink, limits worker.Limits) *Scheduler {
	return &Scheduler{
		store:    st,
		fetcher:  fetcher,
		sink:     sink,
		limits:   limits,
		inFlight: make(map[int64]bool),
	}
}

// Run blocks until ctx is cancelled, ticking every 30 seconds. On
// cancellation it stops dispatching new work, waits for in-flight workers
// to finish, and returns.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler: shutting down, awaiting in-flight workers")
			wg.Wait()
			log.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx, &wg)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, wg *sync.WaitGroup) {
	now := time.Now().UTC()

	due, err := s.store.DueSubscriptions(now)
	if err != nil {
		log.WithError(err).Error("scheduler: failed to query due subscriptions")
		return
	}

	for _, sub := range due {
		if !s.claim(sub.ID) {
			continue
		}
		wg.Add(1)
		go s.runWorker(ctx, wg, sub, now)
	}

	s.RefreshMetrics()

	if s.lastPrune.IsZero() || now.Sub(s.lastPrune) >= pruneInterval {
		if n, err := s.store.PruneJournal(journalRetention); err != nil {
			log.WithError(err).Error("scheduler: failed to prune journal")
		} else {
			log.WithField("rows_deleted", n).Info("scheduler: pruned journal")
		}
		s.lastPrune = now
	}
}

// claim marks subscriptionID as in-flight, returning false if it already
// is. Prevents two workers for the same subscription running concurrently
// (spec.md §5), which could otherwise happen if a poll takes longer than
// one tick.
func (s *Scheduler) claim(subscriptionID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[subscriptionID] {
		return false
	}
	s.inFlight[subscriptionID] = true
	return true
}

func (s *Scheduler) release(subscriptionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, subscriptionID)
}

func (s *Scheduler) runWorker(ctx context.Context, wg *sync.WaitGroup, sub store.Subscription, now time.Time) {
	defer wg.Done()
	defer s.release(sub.ID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("subscription_id", sub.ID).Errorf(
				"scheduler: worker panicked\n%s", debug.Stack())
		}
	}()

	worker.Poll(ctx, s.store, s.fetcher, s.sink, sub, s.limits, now)
}

// RefreshMetrics refreshes the subscription gauge. Called once per tick
// alongside due-selection.
func (s *Scheduler) RefreshMetrics() {
	total, err := s.store.CountSubscriptions()
	if err != nil {
		log.WithError(err).Warn("scheduler: failed to count subscriptions for metrics")
		return
	}
	metrics.SetSubscriptionCount(total)
}
