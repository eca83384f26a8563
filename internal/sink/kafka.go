package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"mtf-screener/internal/model"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the producer.
type KafkaConfig struct {
	Brokers      []string
	SignalTopic  string
	AlignedTopic string
	RequiredAcks int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// NewKafkaWriter builds a writer that hashes on the message key so every
// pair stays on one partition.
func NewKafkaWriter(cfg KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            3,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}, nil
}

// Kafka publishes signals and aligned signals as JSON, keyed by pair.
type Kafka struct {
	w            MessageWriter
	signalTopic  string
	alignedTopic string
}

// NewKafka creates the sink. Empty topics default to "screener.signals"
// and "screener.aligned".
func NewKafka(w MessageWriter, signalTopic, alignedTopic string) *Kafka {
	if signalTopic == "" {
		signalTopic = "screener.signals"
	}
	if alignedTopic == "" {
		alignedTopic = "screener.aligned"
	}
	return &Kafka{w: w, signalTopic: signalTopic, alignedTopic: alignedTopic}
}

func (k *Kafka) EmitSignal(ctx context.Context, s model.Signal) error {
	v, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("kafka: marshal signal: %w", err)
	}
	return k.write(ctx, kafka.Message{
		Topic:   k.signalTopic,
		Key:     []byte(s.Pair),
		Value:   v,
		Time:    time.UnixMilli(s.Timestamp),
		Headers: []kafka.Header{{Key: "timeframe", Value: []byte(s.Timeframe)}},
	})
}

func (k *Kafka) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	v, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("kafka: marshal aligned: %w", err)
	}
	return k.write(ctx, kafka.Message{
		Topic:   k.alignedTopic,
		Key:     []byte(a.Pair),
		Value:   v,
		Time:    time.UnixMilli(a.AlignedAt),
		Headers: []kafka.Header{{Key: "direction", Value: []byte(a.Direction)}},
	})
}

func (k *Kafka) write(ctx context.Context, msg kafka.Message) error {
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", msg.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }
