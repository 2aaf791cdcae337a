package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paypipe/internal/logger"
	pkgerrors "paypipe/pkg/errors"
)

func newSourceServer(t *testing.T, handler http.HandlerFunc) (*HTTPStatusSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPStatusSource(srv.URL, 5*time.Second, nil, logger.NopLogger()), srv
}

func TestFetchPendingNormalizesAliases(t *testing.T) {
	createdAt := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pending-payments", r.URL.Path)
		fmt.Fprintf(w, `[
			{"id": "pay_1", "status": "pending", "method": "pix", "created_at": %q},
			{"payment_id": "pay_2", "payment_status": "pending_approval", "method": "bank_transfer", "proof_uploaded": true, "created_at": %q}
		]`, createdAt, createdAt)
	})

	payments, err := source.FetchPending(context.Background())
	require.NoError(t, err)
	require.Len(t, payments, 2)

	assert.Equal(t, "pay_1", payments[0].ID)
	assert.Equal(t, "pending", payments[0].Status)

	assert.Equal(t, "pay_2", payments[1].ID, "payment_id alias is accepted")
	assert.Equal(t, "pending_approval", payments[1].Status, "payment_status alias is accepted")
	assert.True(t, payments[1].ProofUploaded)
}

func TestFetchPendingAcceptsEnvelopes(t *testing.T) {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	tests := []struct {
		name string
		body string
	}{
		{
			name: "pending_payments envelope",
			body: fmt.Sprintf(`{"pending_payments": [{"id": "pay_1", "status": "pending", "method": "pix", "created_at": %q}]}`, createdAt),
		},
		{
			name: "payments envelope",
			body: fmt.Sprintf(`{"payments": [{"id": "pay_1", "status": "pending", "method": "pix", "created_at": %q}]}`, createdAt),
		},
		{
			name: "bare array",
			body: fmt.Sprintf(`[{"id": "pay_1", "status": "pending", "method": "pix", "created_at": %q}]`, createdAt),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})

			payments, err := source.FetchPending(context.Background())
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, "pay_1", payments[0].ID)
		})
	}
}

func TestFetchPendingSkipsUnusableEntries(t *testing.T) {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"status": "pending", "method": "pix", "created_at": %q},
			{"id": "pay_bad_ts", "status": "pending", "method": "pix", "created_at": "yesterday"},
			{"id": "pay_ok", "status": "pending", "method": "pix", "created_at": %q}
		]`, createdAt, createdAt)
	})

	payments, err := source.FetchPending(context.Background())
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "pay_ok", payments[0].ID)
}

func TestFetchPendingDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"unexpected": "object"}`)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source, _ := newSourceServer(t, tc.handler)

			payments, err := source.FetchPending(context.Background())
			assert.NoError(t, err, "bad polls degrade to empty, never abort the loop")
			assert.Empty(t, payments)
		})
	}
}

func TestFetchPendingTransportErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	source := NewHTTPStatusSource(srv.URL, time.Second, nil, logger.NopLogger())

	_, err := source.FetchPending(context.Background())
	assert.Error(t, err)
}

func TestMarkConfirmed(t *testing.T) {
	var gotPath, gotBody string
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, source.MarkConfirmed(context.Background(), "pay_1"))
	assert.Equal(t, "/api/auto-confirm-payment", gotPath)
	assert.JSONEq(t, `{"payment_id": "pay_1"}`, gotBody)
}

func TestMarkConfirmedNon2xxIsTransient(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := source.MarkConfirmed(context.Background(), "pay_1")
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.ErrTransientInfra.Code, coded.Code)
}

func TestFetchPayment(t *testing.T) {
	createdAt := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/payment-status/pay_1":
			fmt.Fprintf(w, `{"id": "pay_1", "status": "pending", "method": "stripe", "amount": 4200, "created_at": %q}`, createdAt)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	payment, err := source.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", payment.ID)
	assert.Equal(t, "stripe", payment.Method)
	assert.Equal(t, int64(4200), payment.Amount)

	_, err = source.FetchPayment(context.Background(), "pay_missing")
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.ErrNotFound.Code, coded.Code)
}
