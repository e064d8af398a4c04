package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wagerbook/events"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	EventsStream       = "EVENTS"
	eventSubjectPrefix = "events."
	eventStreamMaxAge  = 72 * time.Hour
	sourceService      = "wagerbook"
)

// EventEnvelope wraps every domain event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventPublisher forwards committed domain events to NATS
type NATSEventPublisher struct {
	natsClient *NATSClient
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(natsClient *NATSClient) *NATSEventPublisher {
	return &NATSEventPublisher{natsClient: natsClient}
}

// Setup creates the events stream
func (p *NATSEventPublisher) Setup() error {
	return p.natsClient.EnsureStream(EventsStream, []string{eventSubjectPrefix + ">"}, eventStreamMaxAge)
}

// Attach subscribes the publisher to every event emitted on the bus
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		if err := p.Publish(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to forward event to NATS")
		}
	})
}

// SubjectFor maps an event to its NATS subject
func SubjectFor(eventType events.EventType) string {
	return eventSubjectPrefix + strings.ToLower(string(eventType))
}

// Publish publishes an event to NATS wrapped in an envelope
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	msg := nats.NewMsg(SubjectFor(event.Type()))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, envelope.EventID)

	if err := p.natsClient.Publish(ctx, msg); err != nil {
		if strings.Contains(err.Error(), "no response from stream") {
			log.WithFields(log.Fields{
				"subject":   msg.Subject,
				"eventType": event.Type(),
			}).Debug("No stream configured for event subject")
			return nil
		}
		return err
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
	}).Debug("Published event to NATS")
	return nil
}
