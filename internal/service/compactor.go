package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sophosia/internal/domain"
	"sophosia/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// Compactor: scheduled purge of old tombstones
// ─────────────────────────────────────────────────────────────

// CompactionResult is the payload of EventCompacted.
type CompactionResult struct {
	Purged int       `json:"purged"`
	Before time.Time `json:"before"`
}

// Compactor purges tombstones older than the retention window.
type Compactor struct {
	docs    domain.DocStore
	retain  time.Duration
	emitter EventEmitter
	log     *slog.Logger
	now     func() time.Time

	// running prevents overlapping runs of the scheduled job.
	running keyGuard

	mu    sync.Mutex
	sched *cron.Cron
}

const compactionJob = "compaction"

// NewCompactor creates a Compactor keeping tombstones for retain.
func NewCompactor(docs domain.DocStore, retain time.Duration, emitter EventEmitter) *Compactor {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Compactor{
		docs:    docs,
		retain:  retain,
		emitter: emitter,
		log:     logging.WithComponent("service.compactor"),
		now:     time.Now,
	}
}

// Run compacts once.
func (c *Compactor) Run(ctx context.Context) (int, error) {
	if !c.running.TryLock(compactionJob) {
		return 0, fmt.Errorf("compaction is already running")
	}
	defer c.running.Unlock(compactionJob)

	before := c.now().Add(-c.retain)
	n, err := c.docs.Compact(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	c.log.Info("compacted", "purged", n, "before", before)
	c.emitter.Emit(ctx, EventCompacted, CompactionResult{Purged: n, Before: before})
	return n, nil
}

// Start schedules Run with a cron expression. An empty schedule disables
// compaction. Calling Start again replaces the schedule.
func (c *Compactor) Start(ctx context.Context, schedule string) error {
	c.Stop()
	if schedule == "" {
		return nil
	}

	sched := cron.New()
	_, err := sched.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := c.Run(runCtx); err != nil {
			c.log.Warn("scheduled compaction failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("compaction schedule %q: %w", schedule, err)
	}
	sched.Start()

	c.mu.Lock()
	c.sched = sched
	c.mu.Unlock()
	c.log.Info("compaction scheduled", "schedule", schedule, "retain", c.retain)
	return nil
}

// Stop cancels the schedule and waits for a running compaction.
func (c *Compactor) Stop() {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}
