// Package audit provides the append-only event log for the confirmation
// pipeline. Every record is written once and never mutated; sinks are a
// local JSONL file and, optionally, a Kafka topic.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	KindJobConfirmed        = "job_confirmed"
	KindJobFailed           = "job_failed"
	KindJobExpired          = "job_expired"
	KindJobCancelled        = "job_cancelled"
	KindNotificationDropped = "notification_dropped"
	KindPaymentExpired      = "payment_expired"
	KindAutoConfirmed       = "auto_confirmed"
)

type Record struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	JobID     string                 `json:"job_id,omitempty"`
	PaymentID string                 `json:"payment_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewRecord stamps id and timestamp; callers fill the rest.
func NewRecord(kind string) Record {
	return Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// MultiRecorder fans a record out to every sink. A sink failure does not
// stop the remaining sinks; the first error is returned.
type MultiRecorder struct {
	sinks []Recorder
}

func NewMultiRecorder(sinks ...Recorder) *MultiRecorder {
	return &MultiRecorder{sinks: sinks}
}

func (m *MultiRecorder) Record(ctx context.Context, rec Record) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiRecorder) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopRecorder discards records; used in tests.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, rec Record) error { return nil }
func (NopRecorder) Close() error                                 { return nil }
