// Package eventsink publishes embed-log, decay, and fact-change telemetry
// events to Kafka, adapted from this codebase's KafkaCommitPublisher
// (internal/workspaces/kafka_events.go): a thin kafka.Writer wrapper that is
// a harmless no-op when no brokers are configured.
package eventsink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"
)

// EventType enumerates the HSG lifecycle events this sink carries.
type EventType string

const (
	EventMemoryAdded   EventType = "memory_added"
	EventMemoryDeleted EventType = "memory_deleted"
	EventEmbedLog      EventType = "embed_log"
	EventDecayPass     EventType = "decay_pass"
	EventFactChanged   EventType = "fact_changed"
)

// Event is the envelope written to the configured Kafka topic.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	MemoryID  string    `json:"memory_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink publishes Events. NewKafka returns the no-op sink when no brokers or
// topic are configured, so an unconfigured sink is still a non-nil Sink.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// noopSink discards every event; it is the default when no Kafka brokers
// are configured.
type noopSink struct{}

// NewNoop constructs the default no-op sink.
func NewNoop() Sink { return noopSink{} }

func (noopSink) Publish(context.Context, Event) error { return nil }
func (noopSink) Close() error                         { return nil }

// kafkaSink publishes events to a Kafka topic via kafka-go.
type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafka constructs a Kafka-backed sink. An empty brokers list returns the
// no-op sink instead of failing.
func NewKafka(brokers []string, topic string) Sink {
	if len(brokers) == 0 || topic == "" {
		return NewNoop()
	}
	return &kafkaSink{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (s *kafkaSink) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Value: payload, Time: ev.Timestamp})
}

func (s *kafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		log.Warn().Err(err).Msg("hsg: kafka event sink close failed")
		return err
	}
	return nil
}
