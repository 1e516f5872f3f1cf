// Package events publishes reconciliation outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
)

const (
	TypePaymentStatusChanged = "payment.status_changed"
	TypeInvoiceRecomputed    = "invoice.recomputed"
	TypeTransactionUpserted  = "transaction.upserted"
)

// Event is the envelope written to the topic.
type Event struct {
	Type       string         `json:"type"`
	TenantID   uint           `json:"tenant_id"`
	Key        string         `json:"key"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher delivers events after the storage transaction committed.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

// LoadConfig reads KAFKA_BROKERS and KAFKA_TOPIC.
func LoadConfig() Config {
	return Config{
		Brokers: env.GetList("KAFKA_BROKERS"),
		Topic:   strings.TrimSpace(env.GetEnv("KAFKA_TOPIC", "ledgerfox.reconciliation")),
	}
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// KafkaPublisher writes events with the tenant-scoped key so that all
// events of one reference land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := toMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}

// NoopPublisher drops events. Used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, events ...Event) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }

// NewPublisherFromEnv returns a Kafka publisher when brokers are configured.
func NewPublisherFromEnv() Publisher {
	cfg := LoadConfig()
	if !cfg.Enabled() {
		log.Info("[Events] KAFKA_BROKERS not set, event publishing disabled")
		return NoopPublisher{}
	}
	log.Infof("[Events] Publishing to topic %s via %s", cfg.Topic, strings.Join(cfg.Brokers, ","))
	return NewKafkaPublisher(cfg)
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(ctx context.Context, events ...Event) error {
	r.Events = append(r.Events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types lists the recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
