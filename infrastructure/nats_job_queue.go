package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	JobsStream       = "JOBS"
	jobSubjectPrefix = "jobs."
	jobStreamMaxAge  = 7 * 24 * time.Hour

	// HeaderNotBefore carries the earliest delivery time as unix milliseconds
	HeaderNotBefore = "Wagerbook-Not-Before"
	HeaderJobID     = "Wagerbook-Job-Id"
)

// JobHandler processes the JSON payload of one job
type JobHandler = func(ctx context.Context, payload json.RawMessage) error

// NATSJobQueue is a durable job queue on a JetStream stream. Delayed jobs are
// published immediately and deferred by the consumer until they are due.
type NATSJobQueue struct {
	client     *NATSClient
	maxDeliver int
	retryDelay time.Duration
	now        func() time.Time
}

// NewNATSJobQueue creates a job queue. maxDeliver bounds deliveries per job,
// retryDelay is the backoff after a failed attempt.
func NewNATSJobQueue(client *NATSClient, maxDeliver int, retryDelay time.Duration) *NATSJobQueue {
	return &NATSJobQueue{
		client:     client,
		maxDeliver: maxDeliver,
		retryDelay: retryDelay,
		now:        time.Now,
	}
}

// Setup creates the jobs stream
func (q *NATSJobQueue) Setup() error {
	return q.client.EnsureStream(JobsStream, []string{jobSubjectPrefix + ">"}, jobStreamMaxAge)
}

// Enqueue publishes a job, due after delay
func (q *NATSJobQueue) Enqueue(ctx context.Context, name string, payload any, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	msg := nats.NewMsg(jobSubjectPrefix + name)
	msg.Data = data
	msg.Header.Set(HeaderJobID, uuid.New().String())
	if delay > 0 {
		notBefore := q.now().Add(delay).UnixMilli()
		msg.Header.Set(HeaderNotBefore, strconv.FormatInt(notBefore, 10))
	}

	if err := q.client.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", name, err)
	}

	log.WithFields(log.Fields{
		"job":   name,
		"jobId": msg.Header.Get(HeaderJobID),
		"delay": delay,
	}).Debug("Enqueued job")
	return nil
}

// Consume registers a durable worker for one job name
func (q *NATSJobQueue) Consume(name string, handler JobHandler) error {
	subject := jobSubjectPrefix + name
	return q.client.Subscribe(subject, durableName("worker", subject), q.maxDeliver, q.retryDelay,
		func(ctx context.Context, msg *nats.Msg) error {
			if wait := q.remaining(msg); wait > 0 {
				return &DeferError{Delay: wait}
			}
			return handler(ctx, msg.Data)
		})
}

// remaining returns how long a message must still wait before it is due
func (q *NATSJobQueue) remaining(msg *nats.Msg) time.Duration {
	raw := msg.Header.Get(HeaderNotBefore)
	if raw == "" {
		return 0
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.WithFields(log.Fields{
			"subject": msg.Subject,
			"header":  raw,
		}).Warn("Ignoring malformed not-before header")
		return 0
	}
	return time.UnixMilli(ms).Sub(q.now())
}
