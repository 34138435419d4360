// Package events publishes verification results to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic receives node verified events unless configured otherwise.
const DefaultTopic = "member-portal.node-verified"

// EventTypeNodeVerified is carried in the record header "type".
const EventTypeNodeVerified = "node_verified"

// KafkaPublisher produces events to a Kafka topic, keyed by account id so
// all events of an account land in one partition.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
	log     *slog.Logger
}

// Option configures the KafkaPublisher.
type Option func(*kafkaConfig)

type kafkaConfig struct {
	topic   string
	timeout time.Duration
	extra   []kgo.Opt
}

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(c *kafkaConfig) { c.topic = topic }
}

// WithProduceTimeout bounds a single publish.
func WithProduceTimeout(d time.Duration) Option {
	return func(c *kafkaConfig) { c.timeout = d }
}

// WithClientOpts passes additional options to the franz-go client.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *kafkaConfig) { c.extra = append(c.extra, opts...) }
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, log *slog.Logger, opts ...Option) (*KafkaPublisher, error) {
	cfg := kafkaConfig{topic: DefaultTopic, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	}, cfg.extra...)

	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client:  client,
		topic:   cfg.topic,
		timeout: cfg.timeout,
		log:     log,
	}, nil
}

// PublishNodeVerified implements interfaces.EventPublisher.
func (p *KafkaPublisher) PublishNodeVerified(ctx context.Context, event interfaces.NodeVerifiedEvent) error {
	record, err := nodeVerifiedRecord(p.topic, event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	p.log.Debug("Published node verified event",
		slog.String("topic", p.topic),
		slog.String("account_id", event.AccountID.String()))
	return nil
}

// Ping checks broker connectivity.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and closes the client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

func nodeVerifiedRecord(topic string, event interfaces.NodeVerifiedEvent) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.AccountID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(EventTypeNodeVerified)},
		},
		Timestamp: event.VerifiedAt,
	}, nil
}

// LogPublisher writes events to the log only.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher creates a publisher for deployments without a broker.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// PublishNodeVerified implements interfaces.EventPublisher.
func (p *LogPublisher) PublishNodeVerified(ctx context.Context, event interfaces.NodeVerifiedEvent) error {
	p.log.Info("Node verified",
		slog.String("account_id", event.AccountID.String()),
		slog.String("public_key", event.PublicKey),
		slog.String("signed_file", event.SignedFile),
		slog.Time("verified_at", event.VerifiedAt))
	return nil
}
