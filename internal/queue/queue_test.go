package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelseats/booking/internal/model"
)

func TestRetryableClassification(t *testing.T) {
	assert.Nil(t, Retryable(nil))

	base := errors.New("redis down")
	assert.True(t, IsRetryable(Retryable(base)))
	assert.True(t, IsRetryable(fmt.Errorf("handle job: %w", Retryable(base))))
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
}

func TestRetryDelay(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, RetryDelay(base, 0))
	assert.Equal(t, 4*time.Second, RetryDelay(base, 1))
	assert.Equal(t, 8*time.Second, RetryDelay(base, 2))
	assert.Equal(t, 30*time.Second, RetryDelay(base, 10))
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := envelope{
		JobID: "job-1",
		ReservationRequest: model.ReservationRequest{
			ShowID:  7,
			SeatIDs: []uint64{3, 4},
			UserID:  9,
			IsChild: []bool{false, true},
		},
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	// The embedded request's fields are promoted to the top level so
	// the message stays a flat JSON object on the wire.
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	for _, key := range []string{"job_id", "show_id", "seat_ids", "user_id", "is_child"} {
		assert.Contains(t, m, key)
	}

	var out envelope
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, env, out)
}

func TestDeliveryAttempt(t *testing.T) {
	assert.Equal(t, 0, deliveryAttempt(amqp.Delivery{}))
	assert.Equal(t, 2, deliveryAttempt(amqp.Delivery{Headers: amqp.Table{attemptsHeader: int32(2)}}))
	assert.Equal(t, 3, deliveryAttempt(amqp.Delivery{Headers: amqp.Table{attemptsHeader: int64(3)}}))
	assert.Equal(t, 0, deliveryAttempt(amqp.Delivery{Headers: amqp.Table{attemptsHeader: "bogus"}}))
}

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(4, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Job, 1)
	go func() {
		_ = q.Consume(ctx, 2, func(_ context.Context, job Job) error {
			got <- job
			return nil
		})
	}()

	req := model.ReservationRequest{ShowID: 7, SeatIDs: []uint64{1}, UserID: 9, IsChild: []bool{false}}
	jobID, err := q.Enqueue(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	select {
	case job := <-got:
		assert.Equal(t, jobID, job.ID)
		assert.Equal(t, 0, job.Attempt)
		assert.Equal(t, req, job.Request)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}
}

func TestMemoryQueueRetriesUpToCeiling(t *testing.T) {
	q := NewMemoryQueue(4, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 8)
	go func() {
		_ = q.Consume(ctx, 1, func(_ context.Context, job Job) error {
			attempts <- job.Attempt
			return Retryable(errors.New("transient"))
		})
	}()

	_, err := q.Enqueue(ctx, model.ReservationRequest{ShowID: 1, SeatIDs: []uint64{1}, IsChild: []bool{false}})
	require.NoError(t, err)

	for want := 0; want < 3; want++ {
		select {
		case got := <-attempts:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d never arrived", want)
		}
	}
	select {
	case got := <-attempts:
		t.Fatalf("delivered past the attempt ceiling: attempt %d", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryQueueTerminalErrorNotRedelivered(t *testing.T) {
	q := NewMemoryQueue(4, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 8)
	go func() {
		_ = q.Consume(ctx, 1, func(_ context.Context, job Job) error {
			attempts <- job.Attempt
			return errors.New("permanent")
		})
	}()

	_, err := q.Enqueue(ctx, model.ReservationRequest{ShowID: 1, SeatIDs: []uint64{1}, IsChild: []bool{false}})
	require.NoError(t, err)

	select {
	case <-attempts:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}
	select {
	case <-attempts:
		t.Fatal("terminal failure was redelivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryQueueFullBuffer(t *testing.T) {
	q := NewMemoryQueue(1, 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.ReservationRequest{ShowID: 1, SeatIDs: []uint64{1}, IsChild: []bool{false}})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, model.ReservationRequest{ShowID: 1, SeatIDs: []uint64{2}, IsChild: []bool{false}})
	assert.Error(t, err)
}
