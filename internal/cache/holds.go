package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelseats/booking/internal/model"
)

// ErrHoldNotFound is returned when no pending lock exists for a
// (show, user) pair: the hold expired, was consumed, or never existed.
var ErrHoldNotFound = errors.New("pending lock not found")

// HoldStore keeps pending-lock records under booking:{show}:{user}.
// A record is created by the reservation worker after it locks seats
// and is deleted by the booking finalizer (single use) or by its TTL,
// which equals the booking finalization window.
type HoldStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHoldStore returns a HoldStore whose records expire after ttl.
func NewHoldStore(client *redis.Client, ttl time.Duration) *HoldStore {
	return &HoldStore{client: client, ttl: ttl}
}

func holdKey(showID, userID uint64) string {
	return fmt.Sprintf("booking:%d:%d", showID, userID)
}

// Put records that the given seats are held for the user on this show.
// An existing record for the same key is replaced and its TTL reset.
func (s *HoldStore) Put(ctx context.Context, showID uint64, hold model.PendingLock) error {
	body, err := json.Marshal(hold)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, holdKey(showID, hold.UserID), body, s.ttl).Err(); err != nil {
		return fmt.Errorf("store pending lock show=%d user=%d: %w", showID, hold.UserID, err)
	}
	return nil
}

// Get returns the unexpired pending lock for (show, user), or
// ErrHoldNotFound.
func (s *HoldStore) Get(ctx context.Context, showID, userID uint64) (*model.PendingLock, error) {
	body, err := s.client.Get(ctx, holdKey(showID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read pending lock show=%d user=%d: %w", showID, userID, err)
	}
	var hold model.PendingLock
	if err := json.Unmarshal(body, &hold); err != nil {
		return nil, fmt.Errorf("decode pending lock show=%d user=%d: %w", showID, userID, err)
	}
	return &hold, nil
}

// Delete removes the pending lock for (show, user).  Deleting a missing
// key is not an error; the TTL may have beaten us to it.
func (s *HoldStore) Delete(ctx context.Context, showID, userID uint64) error {
	if err := s.client.Del(ctx, holdKey(showID, userID)).Err(); err != nil {
		return fmt.Errorf("delete pending lock show=%d user=%d: %w", showID, userID, err)
	}
	return nil
}
