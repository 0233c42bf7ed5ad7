package worker

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ReaperStore is the slice of the seat store the reaper drives: find
// stale LOCKED seats grouped by show, and reclaim one show's worth in
// a single transaction.
type ReaperStore interface {
	StaleLocked(ctx context.Context, cutoff time.Time) (map[uint64][]uint64, error)
	ReapShow(ctx context.Context, showID uint64, cutoff time.Time) (int64, error)
}

// Reaper periodically force-releases seats stuck in LOCKED past the
// reservation hold timeout.  It is the sole compensation for workers
// that commit a lock and then die before finalization or release.  It
// never talks to the distributed lock service: any such locks have long
// since expired by TTL, only persisted state needs repair.
type Reaper struct {
	store     ReaperStore
	avail     Invalidator
	interval  time.Duration
	timeout   time.Duration
	scheduler gocron.Scheduler
	now       func() time.Time
}

// NewReaper builds a reaper scanning every interval for locks older
// than timeout.
func NewReaper(store ReaperStore, avail Invalidator, interval, timeout time.Duration) *Reaper {
	if store == nil || avail == nil {
		panic("nil dependency passed to NewReaper")
	}
	return &Reaper{store: store, avail: avail, interval: interval, timeout: timeout, now: time.Now}
}

// Start schedules the periodic sweep.  It returns after the scheduler
// is running; Stop shuts it down.
func (r *Reaper) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}
	r.scheduler = s
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.Sweep(ctx) }),
	)
	if err != nil {
		return err
	}
	s.Start()
	log.Printf("reaper: started, interval=%s hold timeout=%s", r.interval, r.timeout)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.scheduler != nil {
		if err := r.scheduler.Shutdown(); err != nil {
			log.Printf("reaper: shutdown: %v", err)
		}
	}
}

// Sweep performs one scan-and-reclaim pass.  Stale seats are grouped by
// show and each show is repaired in its own transaction; staleness is
// re-checked inside the UPDATE, so a seat finalized mid-sweep is left
// alone.  Exported for tests and for a manual sweep at startup.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := r.now().UTC().Add(-r.timeout)
	stale, err := r.store.StaleLocked(ctx, cutoff)
	if err != nil {
		log.Printf("reaper: scan failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	for showID, seatIDs := range stale {
		n, err := r.store.ReapShow(ctx, showID, cutoff)
		if err != nil {
			log.Printf("reaper: reclaim show %d failed: %v", showID, err)
			continue
		}
		if n == 0 {
			continue
		}
		log.Printf("reaper: reclaimed %d of %d stale seats for show %d", n, len(seatIDs), showID)
		if err := r.avail.InvalidateShow(ctx, showID); err != nil {
			log.Printf("reaper: invalidate availability show %d: %v", showID, err)
		}
	}
}
