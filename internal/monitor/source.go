package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paypipe/internal/logger"
	"paypipe/pkg/circuitbreaker"
	"paypipe/pkg/errors"
	"paypipe/pkg/metrics"
)

// PaymentSnapshot is the monitor's view of one payment as reported by the
// status API.
type PaymentSnapshot struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Method        string    `json:"method"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Serial        string    `json:"serial"`
	CreatedAt     time.Time `json:"created_at"`
	ProofUploaded bool      `json:"proof_uploaded"`
	ProofFilename string    `json:"proof_filename,omitempty"`
}

// StatusSource lists payments awaiting confirmation. MarkConfirmed reports
// a submitted confirmation back so the payment leaves the pending feed and
// is not confirmed again on the next poll.
type StatusSource interface {
	FetchPending(ctx context.Context) ([]PaymentSnapshot, error)
	FetchPayment(ctx context.Context, paymentID string) (PaymentSnapshot, error)
	MarkConfirmed(ctx context.Context, paymentID string) error
}

// paymentPayload accepts both field spellings the status API has used.
type paymentPayload struct {
	ID            string `json:"id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Method        string `json:"method"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Serial        string `json:"serial"`
	CreatedAt     string `json:"created_at"`
	ProofUploaded bool   `json:"proof_uploaded"`
	ProofFilename string `json:"proof_filename"`
}

// HTTPStatusSource fetches pending payments from the status API behind a
// circuit breaker. Non-2xx responses and malformed payloads degrade to an
// empty list so one bad poll never aborts the monitor loop; only transport
// failures surface as errors and trip the breaker.
type HTTPStatusSource struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

func NewHTTPStatusSource(baseURL string, timeout time.Duration, breaker *circuitbreaker.Wrapper, log logger.Logger) *HTTPStatusSource {
	return &HTTPStatusSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  log,
	}
}

func (s *HTTPStatusSource) FetchPending(ctx context.Context) ([]PaymentSnapshot, error) {
	start := time.Now()
	body, status, err := s.get(ctx, s.baseURL+"/api/pending-payments")
	if err != nil {
		metrics.ObserveMonitorFetch(time.Since(start), "error")
		return nil, err
	}
	metrics.ObserveMonitorFetch(time.Since(start), fmt.Sprintf("%d", status))

	if status != http.StatusOK {
		s.logger.Warnw("pending payments fetch returned non-200, treating as empty",
			"status", status)
		return nil, nil
	}

	payloads, err := decodePendingBody(body)
	if err != nil {
		s.logger.Warnw("pending payments response is malformed, treating as empty",
			"error", err)
		return nil, nil
	}

	snapshots := make([]PaymentSnapshot, 0, len(payloads))
	for _, p := range payloads {
		snap, ok := s.normalize(p)
		if !ok {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (s *HTTPStatusSource) FetchPayment(ctx context.Context, paymentID string) (PaymentSnapshot, error) {
	body, status, err := s.get(ctx, s.baseURL+"/api/payment-status/"+paymentID)
	if err != nil {
		return PaymentSnapshot{}, err
	}
	if status == http.StatusNotFound {
		return PaymentSnapshot{}, errors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("payment %s not found", paymentID))
	}
	if status != http.StatusOK {
		return PaymentSnapshot{}, errors.ErrTransientInfra.WithDetail("message",
			fmt.Sprintf("payment status fetch returned %d", status))
	}

	var payload paymentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return PaymentSnapshot{}, errors.ErrTransientInfra.WithCause(err)
	}
	snap, ok := s.normalize(payload)
	if !ok {
		return PaymentSnapshot{}, errors.ErrValidation.WithDetail("message",
			"payment status payload has no usable id or timestamp")
	}
	return snap, nil
}

// MarkConfirmed posts the confirmation back to the status API so the
// payment is removed from the pending feed.
func (s *HTTPStatusSource) MarkConfirmed(ctx context.Context, paymentID string) error {
	payload, err := json.Marshal(map[string]string{"payment_id": paymentID})
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	call := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.baseURL+"/api/auto-confirm-payment", bytes.NewReader(payload))
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, errors.ErrTransientInfra.WithCause(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, errors.ErrTransientInfra.WithDetail("message",
				fmt.Sprintf("auto-confirm callback returned %d", resp.StatusCode))
		}
		return nil, nil
	}

	if s.breaker != nil {
		_, err = s.breaker.ExecuteWithContext(ctx, call)
	} else {
		_, err = call()
	}
	return err
}

func (s *HTTPStatusSource) get(ctx context.Context, url string) ([]byte, int, error) {
	type result struct {
		body   []byte
		status int
	}

	call := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, errors.ErrTransientInfra.WithCause(err)
		}
		defer resp.Body.Close()

		var body []byte
		if body, err = readAll(resp); err != nil {
			return nil, errors.ErrTransientInfra.WithCause(err)
		}
		return result{body: body, status: resp.StatusCode}, nil
	}

	var out interface{}
	var err error
	if s.breaker != nil {
		out, err = s.breaker.ExecuteWithContext(ctx, call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, 0, err
	}
	res := out.(result)
	return res.body, res.status, nil
}

func (s *HTTPStatusSource) normalize(p paymentPayload) (PaymentSnapshot, bool) {
	id := p.ID
	if id == "" {
		id = p.PaymentID
	}
	if id == "" {
		s.logger.Warnw("skipping payment payload without an id")
		return PaymentSnapshot{}, false
	}

	status := p.Status
	if status == "" {
		status = p.PaymentStatus
	}

	createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		s.logger.Warnw("skipping payment with unparseable created_at",
			"payment_id", id,
			"created_at", p.CreatedAt)
		return PaymentSnapshot{}, false
	}

	return PaymentSnapshot{
		ID:            id,
		Status:        status,
		Method:        p.Method,
		Email:         p.Email,
		Name:          p.Name,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Serial:        p.Serial,
		CreatedAt:     createdAt,
		ProofUploaded: p.ProofUploaded,
		ProofFilename: p.ProofFilename,
	}, true
}

// decodePendingBody accepts the two envelope shapes the status API has
// served, {"pending_payments": [...]} and {"payments": [...]}, plus a bare
// array.
func decodePendingBody(body []byte) ([]paymentPayload, error) {
	var envelope struct {
		PendingPayments []paymentPayload `json:"pending_payments"`
		Payments        []paymentPayload `json:"payments"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.PendingPayments != nil {
			return envelope.PendingPayments, nil
		}
		if envelope.Payments != nil {
			return envelope.Payments, nil
		}
	}

	var payloads []paymentPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, err
	}
	return payloads, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	const maxBody = 4 << 20
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}
