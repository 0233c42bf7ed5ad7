package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/reelseats/booking/internal/model"
)

const (
	reservationQueueName = "reservation.requests"
	attemptsHeader       = "x-attempts"
)

// envelope is the wire format of a reservation job.  The attempt count
// travels in a message header, not the body, so a retry republish never
// rewrites the payload.
type envelope struct {
	JobID string `json:"job_id"`
	model.ReservationRequest
}

// Broker is the RabbitMQ-backed job queue.  Messages are persistent on
// a durable queue and acked manually, giving at-least-once delivery;
// retryable failures are republished with an incremented attempts
// header after an exponential backoff.
type Broker struct {
	url         string
	maxAttempts int
	baseDelay   time.Duration
}

// NewBroker returns a Broker for the given AMQP URL.  maxAttempts is
// the total delivery ceiling per job and baseDelay seeds the
// exponential retry backoff.
func NewBroker(url string, maxAttempts int, baseDelay time.Duration) *Broker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Broker{url: url, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Enqueue publishes a reservation request and returns the generated job
// ID.  The call dials, declares the durable queue (idempotent) and
// publishes a persistent message; it never blocks on seat locks.
func (b *Broker) Enqueue(ctx context.Context, req model.ReservationRequest) (string, error) {
	jobID := uuid.NewString()
	if err := b.publish(ctx, envelope{JobID: jobID, ReservationRequest: req}, 0); err != nil {
		return "", err
	}
	return jobID, nil
}

// publish sends one message carrying the given attempt count.  A fresh
// connection per publish keeps the producer free of shared channel
// state; enqueue traffic is low relative to consumption.
func (b *Broker) publish(ctx context.Context, env envelope, attempt int) error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(reservationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    env.JobID,
		Headers:      amqp.Table{attemptsHeader: int32(attempt)},
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", reservationQueueName, false, false, pub); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Consume connects to the broker and feeds deliveries to a pool of
// `workers` goroutines running the handler.  The prefetch count equals
// the pool size so in-flight work is bounded.  It runs a reconnect loop
// with exponential backoff and returns only when ctx is cancelled.
func (b *Broker) Consume(ctx context.Context, workers int, handle HandlerFunc) error {
	if workers < 1 {
		workers = 1
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(b.url)
		if err != nil {
			log.Printf("amqp: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := b.consumeLoop(ctx, conn, workers, handle); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("amqp: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func (b *Broker) consumeLoop(ctx context.Context, conn *amqp.Connection, workers int, handle HandlerFunc) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(reservationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(reservationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for d := range msgs {
				b.handleDelivery(ctx, d, handle)
			}
			done <- struct{}{}
		}()
	}

	// Close the channel on shutdown so the delivery range loops end.
	go func() {
		<-ctx.Done()
		_ = ch.Close()
	}()

	for i := 0; i < workers; i++ {
		<-done
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("deliveries channel closed")
}

// handleDelivery decodes one message, runs the handler and settles the
// delivery.  Retryable failures below the attempt ceiling are
// republished with an incremented attempts header after a backoff;
// everything else is acked or rejected without requeue.
func (b *Broker) handleDelivery(ctx context.Context, d amqp.Delivery, handle HandlerFunc) {
	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.Printf("amqp: drop undecodable job: %v", err)
		_ = d.Nack(false, false)
		return
	}
	job := Job{ID: env.JobID, Attempt: deliveryAttempt(d), Request: env.ReservationRequest}

	err := handle(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	if IsRetryable(err) && job.Attempt+1 < b.maxAttempts {
		delay := RetryDelay(b.baseDelay, job.Attempt)
		log.Printf("amqp: job %s attempt %d failed: %v; retrying in %s", job.ID, job.Attempt+1, err, delay)
		select {
		case <-ctx.Done():
			// Shutdown mid-retry: requeue so another consumer takes over.
			_ = d.Nack(false, true)
			return
		case <-time.After(delay):
		}
		if pubErr := b.publish(ctx, env, job.Attempt+1); pubErr != nil {
			log.Printf("amqp: republish job %s failed: %v; requeueing original", job.ID, pubErr)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}
	log.Printf("amqp: job %s failed terminally: %v", job.ID, err)
	_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
}

func deliveryAttempt(d amqp.Delivery) int {
	if v, ok := d.Headers[attemptsHeader]; ok {
		switch n := v.(type) {
		case int32:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}
