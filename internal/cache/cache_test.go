package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelseats/booking/internal/model"
)

func TestResultStoreLifecycle(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewResultStore(db, 5*time.Minute)
	ctx := context.Background()

	queued, err := json.Marshal(model.JobResult{Status: model.JobQueued})
	require.NoError(t, err)
	mock.ExpectSetNX("job:abc", queued, 5*time.Minute).SetVal(true)
	require.NoError(t, s.MarkQueued(ctx, "abc"))

	mock.ExpectGet("job:abc").SetVal(string(queued))
	res, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, res.Status)

	done, err := json.Marshal(model.JobResult{Status: model.JobDone, Success: true, Message: "seats locked successfully"})
	require.NoError(t, err)
	mock.ExpectSet("job:abc", done, 5*time.Minute).SetVal("OK")
	require.NoError(t, s.SetResult(ctx, "abc", true, "seats locked successfully"))

	mock.ExpectGet("job:abc").SetVal(string(done))
	res, err = s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, res.Status)
	assert.True(t, res.Success)
	assert.Equal(t, "seats locked successfully", res.Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreQueuedMarkerCannotClobberFinalResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewResultStore(db, 5*time.Minute)
	ctx := context.Background()

	// A fast worker finishes before the enqueue path writes its marker.
	done, err := json.Marshal(model.JobResult{Status: model.JobDone, Success: true, Message: "seats locked successfully"})
	require.NoError(t, err)
	mock.ExpectSet("job:abc", done, 5*time.Minute).SetVal("OK")
	require.NoError(t, s.SetResult(ctx, "abc", true, "seats locked successfully"))

	// The late marker is written NX, loses, and is not an error.
	queued, err := json.Marshal(model.JobResult{Status: model.JobQueued})
	require.NoError(t, err)
	mock.ExpectSetNX("job:abc", queued, 5*time.Minute).SetVal(false)
	require.NoError(t, s.MarkQueued(ctx, "abc"))

	mock.ExpectGet("job:abc").SetVal(string(done))
	res, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, res.Status)
	assert.True(t, res.Success)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreUnknownJob(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewResultStore(db, time.Minute)

	mock.ExpectGet("job:nope").RedisNil()
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrResultNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldStorePutGetDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewHoldStore(db, 5*time.Minute)
	ctx := context.Background()

	hold := model.PendingLock{
		UserID:   9,
		SeatIDs:  []uint64{3, 4},
		LockedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(hold)
	require.NoError(t, err)

	mock.ExpectSet("booking:7:9", body, 5*time.Minute).SetVal("OK")
	require.NoError(t, s.Put(ctx, 7, hold))

	mock.ExpectGet("booking:7:9").SetVal(string(body))
	got, err := s.Get(ctx, 7, 9)
	require.NoError(t, err)
	assert.Equal(t, hold.UserID, got.UserID)
	assert.Equal(t, hold.SeatIDs, got.SeatIDs)
	assert.True(t, got.Covers([]uint64{4}))
	assert.False(t, got.Covers([]uint64{4, 5}))

	mock.ExpectDel("booking:7:9").SetVal(1)
	require.NoError(t, s.Delete(ctx, 7, 9))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldStoreMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewHoldStore(db, time.Minute)

	mock.ExpectGet("booking:7:9").RedisNil()
	_, err := s.Get(context.Background(), 7, 9)
	assert.True(t, errors.Is(err, ErrHoldNotFound))

	// Deleting an absent key is not an error; TTL expiry races are normal.
	mock.ExpectDel("booking:7:9").SetVal(0)
	assert.NoError(t, s.Delete(context.Background(), 7, 9))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityCacheInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewAvailabilityCache(db)

	mock.ExpectDel("seats:7").SetVal(1)
	assert.NoError(t, c.InvalidateShow(context.Background(), 7))

	mock.ExpectDel("seats:7").SetErr(errors.New("connection refused"))
	assert.Error(t, c.InvalidateShow(context.Background(), 7))

	assert.NoError(t, mock.ExpectationsWereMet())
}
