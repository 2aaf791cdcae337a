package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"paypipe/internal/logger"
	"paypipe/pkg/errors"
)

// Transport delivers a rendered message to its destination.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Rendered) error
}

// HTTPTransport posts rendered messages to an email provider API.
type HTTPTransport struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPTransport(name, url, apiKey string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Name() string {
	return t.name
}

func (t *HTTPTransport) Send(ctx context.Context, msg Rendered) error {
	payload, err := json.Marshal(map[string]string{
		"to":      msg.To,
		"from":    msg.From,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.ErrTransientInfra.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.ErrTransientInfra.WithDetail("message",
			fmt.Sprintf("%s transport returned status %d", t.name, resp.StatusCode))
	}
	return nil
}

// FileTransport appends rendered messages to a local JSONL file. It is the
// last resort when every remote transport is down, so operators can replay
// the mail later.
type FileTransport struct {
	path string

	mu sync.Mutex
}

func NewFileTransport(path string) *FileTransport {
	return &FileTransport{path: path}
}

func (t *FileTransport) Name() string {
	return "file"
}

func (t *FileTransport) Send(_ context.Context, msg Rendered) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	defer f.Close()

	line, err := json.Marshal(struct {
		Rendered
		WrittenAt time.Time `json:"written_at"`
	}{Rendered: msg, WrittenAt: time.Now()})
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	return nil
}

// ChainTransport tries each transport in order and succeeds on the first one
// that accepts the message.
type ChainTransport struct {
	transports []Transport
	logger     logger.Logger
}

func NewChainTransport(log logger.Logger, transports ...Transport) *ChainTransport {
	return &ChainTransport{transports: transports, logger: log}
}

func (t *ChainTransport) Name() string {
	return "chain"
}

func (t *ChainTransport) Send(ctx context.Context, msg Rendered) error {
	if len(t.transports) == 0 {
		return errors.ErrConfiguration.WithDetail("message", "no transports configured")
	}

	var lastErr error
	for _, transport := range t.transports {
		err := transport.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		t.logger.Warnw("transport failed, trying next",
			"transport", transport.Name(),
			"to", msg.To,
			"error", err)
	}
	return fmt.Errorf("all transports failed: %w", lastErr)
}
