// Package events publishes appointment lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
	"github.com/hackgods/salon-appointment-scheduling/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AppointmentID *int64          `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// KafkaPublisher implements appointment.EventPublisher. Messages are keyed by
// appointment id so one appointment's events stay ordered in a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	newID   func() string
}

var _ appointment.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func newPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		timeout: 3 * time.Second,
		newID:   func() string { return uuid.NewString() },
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev appointment.EventLog) error {
	env := Envelope{
		EventID:       p.newID(),
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		OccurredAt:    ev.CreatedAt.UTC(),
	}
	if len(ev.Payload) > 0 {
		env.Payload = json.RawMessage(ev.Payload)
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.EventType, err)
	}

	var key []byte
	if ev.AppointmentID != nil {
		key = []byte(strconv.FormatInt(*ev.AppointmentID, 10))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.EventType, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
