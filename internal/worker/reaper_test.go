package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReaperStore struct {
	mu      sync.Mutex
	stale   map[uint64][]uint64
	scanErr error
	reaped  map[uint64]time.Time
	reapN   map[uint64]int64
	reapErr map[uint64]error
}

func newFakeReaperStore() *fakeReaperStore {
	return &fakeReaperStore{
		stale:   make(map[uint64][]uint64),
		reaped:  make(map[uint64]time.Time),
		reapN:   make(map[uint64]int64),
		reapErr: make(map[uint64]error),
	}
}

func (f *fakeReaperStore) StaleLocked(_ context.Context, _ time.Time) (map[uint64][]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.stale, nil
}

func (f *fakeReaperStore) ReapShow(_ context.Context, showID uint64, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reapErr[showID]; err != nil {
		return 0, err
	}
	f.reaped[showID] = cutoff
	return f.reapN[showID], nil
}

func TestSweepReclaimsStaleShows(t *testing.T) {
	store := newFakeReaperStore()
	store.stale[7] = []uint64{1, 2}
	store.stale[8] = []uint64{5}
	store.reapN[7] = 2
	store.reapN[8] = 1
	avail := &fakeAvail{}

	r := NewReaper(store, avail, time.Minute, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Sweep(context.Background())

	require.Len(t, store.reaped, 2)
	assert.Equal(t, now.Add(-5*time.Minute), store.reaped[7])
	assert.Equal(t, 2, avail.calls, "each repaired show is invalidated")
}

func TestSweepSkipsInvalidationWhenNothingReclaimed(t *testing.T) {
	store := newFakeReaperStore()
	store.stale[7] = []uint64{1}
	store.reapN[7] = 0 // finalized between scan and reap
	avail := &fakeAvail{}

	r := NewReaper(store, avail, time.Minute, 5*time.Minute)
	r.Sweep(context.Background())

	assert.Equal(t, 0, avail.calls)
}

func TestSweepToleratesScanFailure(t *testing.T) {
	store := newFakeReaperStore()
	store.scanErr = errors.New("db down")
	avail := &fakeAvail{}

	r := NewReaper(store, avail, time.Minute, 5*time.Minute)
	r.Sweep(context.Background())

	assert.Empty(t, store.reaped)
	assert.Equal(t, 0, avail.calls)
}

func TestSweepContinuesPastFailedShow(t *testing.T) {
	store := newFakeReaperStore()
	store.stale[7] = []uint64{1}
	store.stale[8] = []uint64{2}
	store.reapErr[7] = errors.New("lock wait timeout")
	store.reapN[8] = 1
	avail := &fakeAvail{}

	r := NewReaper(store, avail, time.Minute, 5*time.Minute)
	r.Sweep(context.Background())

	// Show 8 is still repaired even though show 7 failed.
	require.Len(t, store.reaped, 1)
	assert.Contains(t, store.reaped, uint64(8))
	assert.Equal(t, 1, avail.calls)
}
