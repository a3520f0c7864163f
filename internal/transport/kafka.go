// internal/transport/kafka.go
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/solatis/schemainspector/internal/metrics"
)

// messageWriter is the subset of *kafka.Writer the sender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSender.
type KafkaConfig struct {
	// Brokers is a comma-separated host:port list.
	Brokers string
	Topic   string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// KafkaSender publishes records to a topic instead of the track endpoint,
// for hosts that ship inspector traffic through their own pipeline. Each
// batch becomes one message holding the same JSON array the HTTP sender
// posts, keyed by the API key of its first record.
type KafkaSender struct {
	writer  messageWriter
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewKafkaSender creates a sender writing to cfg.Topic on cfg.Brokers.
func NewKafkaSender(cfg KafkaConfig) (*KafkaSender, error) {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sender: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sender: no topic configured")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.LeastBytes{},
	}
	return newKafkaSender(w, cfg.Logger, cfg.Metrics), nil
}

func newKafkaSender(w messageWriter, logger *slog.Logger, m *metrics.Metrics) *KafkaSender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KafkaSender{writer: w, now: time.Now, logger: logger, metrics: m}
}

// SendBatch publishes bodies as one message. Sampling does not apply; the
// broker consumer decides what to keep.
func (k *KafkaSender) SendBatch(ctx context.Context, bodies []Body) error {
	if len(bodies) == 0 {
		return nil
	}
	err := k.publish(ctx, bodies)
	k.metrics.BatchSent(err == nil)
	return err
}

// SendValidated publishes a single record.
func (k *KafkaSender) SendValidated(ctx context.Context, body Body) error {
	return k.publish(ctx, []Body{body})
}

// Close flushes pending writes and releases broker connections.
func (k *KafkaSender) Close() error {
	return k.writer.Close()
}

func (k *KafkaSender) publish(ctx context.Context, bodies []Body) error {
	data, err := json.Marshal(bodies)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(bodies[0].APIKey),
		Value: data,
		Time:  k.now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish records: %w", err)
	}
	k.logger.Debug("published records", "records", len(bodies))
	return nil
}
