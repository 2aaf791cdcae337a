package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"paypipe/pkg/metrics"
)

// FileRecorder appends one JSON record per line to a local file.
type FileRecorder struct {
	mu   sync.Mutex
	file *os.File
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log %s: %w", path, err)
	}
	return &FileRecorder{file: file}, nil
}

func (r *FileRecorder) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(append(body, '\n')); err != nil {
		metrics.AuditRecordsTotal.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	metrics.AuditRecordsTotal.WithLabelValues("file", "ok").Inc()
	return nil
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
