package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"paypipe/internal/config"
	"paypipe/pkg/metrics"
	"paypipe/pkg/retry"
)

const (
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaWriteTimeout = 10 * time.Second
)

// writePolicy bounds broker hiccup retries so a slow audit write cannot
// stall the pipeline for long.
var writePolicy = retry.Policy{
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	Multiplier:      2.0,
}

// KafkaRecorder publishes audit records to a topic, keyed by payment id so
// all events for one payment land on the same partition.
type KafkaRecorder struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaRecorder(cfg config.KafkaConfig) *KafkaRecorder {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: kafkaBatchTimeout,
		WriteTimeout: kafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaRecorder{writer: w, topic: cfg.AuditTopic}
}

func (r *KafkaRecorder) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	key := rec.PaymentID
	if key == "" {
		key = rec.ID
	}

	err = retry.Retry(ctx, writePolicy, func() error {
		return r.writer.WriteMessages(ctx,
			kafka.Message{
				Topic: r.topic,
				Key:   []byte(key),
				Value: body,
				Time:  time.Now(),
			},
		)
	})
	if err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("failed to write audit record to kafka: %w", err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (r *KafkaRecorder) Close() error {
	return r.writer.Close()
}
