package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paypipe/internal/config"
	"paypipe/internal/logger"
	pkgerrors "paypipe/pkg/errors"
)

type fakeChargeProvider struct {
	charge Charge
	err    error
}

func (p *fakeChargeProvider) GetCharge(_ context.Context, _ string) (Charge, error) {
	return p.charge, p.err
}

func newTestService(t *testing.T, charges ChargeProvider, orders OrderProvider) *Service {
	t.Helper()
	fraud, err := NewCELFraudChecker("")
	require.NoError(t, err)

	cfg := config.VerificationConfig{
		MaxPaymentAge: time.Hour,
		ProofMaxAge:   24 * time.Hour,
	}
	return NewService(cfg, charges, orders, fraud, NewMemoryDuplicateChecker(), logger.NopLogger())
}

func validCharge() Charge {
	return Charge{
		ID:        "ch_123",
		Amount:    9900,
		Currency:  "BRL",
		Status:    "succeeded",
		RiskLevel: "normal",
		CreatedAt: time.Now().Add(-10 * time.Minute),
	}
}

func TestVerifyCardPayment(t *testing.T) {
	exp := Expectation{PaymentID: "pay_1", ProviderRef: "ch_123", Amount: 9900, Currency: "BRL"}

	tests := []struct {
		name        string
		mutate      func(c *Charge)
		wantSuccess bool
		failedCheck string
	}{
		{
			name:        "all checks pass",
			mutate:      func(c *Charge) {},
			wantSuccess: true,
		},
		{
			name:        "amount mismatch",
			mutate:      func(c *Charge) { c.Amount = 5000 },
			wantSuccess: false,
			failedCheck: "amount_correct",
		},
		{
			name:        "currency mismatch",
			mutate:      func(c *Charge) { c.Currency = "USD" },
			wantSuccess: false,
			failedCheck: "currency_correct",
		},
		{
			name:        "charge not succeeded",
			mutate:      func(c *Charge) { c.Status = "requires_action" },
			wantSuccess: false,
			failedCheck: "status_succeeded",
		},
		{
			name:        "refunded charge",
			mutate:      func(c *Charge) { c.Refunded = true },
			wantSuccess: false,
			failedCheck: "not_refunded",
		},
		{
			name:        "fraud flagged",
			mutate:      func(c *Charge) { c.RiskLevel = "elevated" },
			wantSuccess: false,
			failedCheck: "fraud_check",
		},
		{
			name:        "charge older than one hour",
			mutate:      func(c *Charge) { c.CreatedAt = time.Now().Add(-2 * time.Hour) },
			wantSuccess: false,
			failedCheck: "timestamp_valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charge := validCharge()
			tt.mutate(&charge)
			svc := newTestService(t, &fakeChargeProvider{charge: charge}, nil)

			result, err := svc.VerifyCardPayment(context.Background(), exp)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.failedCheck, result.FailedCheck)
			assert.False(t, result.RequiresManualApproval)
			assert.Len(t, result.Checks, 6)
		})
	}
}

func TestVerifyCardPaymentProviderError(t *testing.T) {
	svc := newTestService(t, &fakeChargeProvider{err: pkgerrors.ErrTimeout}, nil)

	_, err := svc.VerifyCardPayment(context.Background(), Expectation{ProviderRef: "ch_1"})
	require.Error(t, err)
	appErr, ok := err.(*pkgerrors.Error)
	require.True(t, ok)
	assert.True(t, appErr.IsRetryable())
}

func TestVerifyWalletPayment(t *testing.T) {
	stub := &StubOrderProvider{Amount: 9900, Currency: "BRL"}
	svc := newTestService(t, nil, stub)

	result, err := svc.VerifyWalletPayment(context.Background(), Expectation{
		PaymentID:   "pay_1",
		ProviderRef: "order_1",
		Amount:      9900,
		Currency:    "BRL",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Checks["order_exists"])
	assert.True(t, result.Checks["status_completed"])
	assert.False(t, result.RequiresManualApproval)
}

func TestVerifyWalletPaymentNoProvider(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.VerifyWalletPayment(context.Background(), Expectation{ProviderRef: "order_1"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrConfiguration.Code, err.(*pkgerrors.Error).Code)
}

func TestVerifyBankTransferPayment(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		proof       Proof
		wantSuccess bool
		failedCheck string
	}{
		{
			name: "valid proof",
			proof: Proof{
				Filename:         "receipt.pdf",
				DeclaredAmount:   9900,
				UploadedAt:       now,
				PaymentCreatedAt: now.Add(-time.Hour),
			},
			wantSuccess: true,
		},
		{
			name:        "no proof attached",
			proof:       Proof{},
			wantSuccess: false,
			failedCheck: "proof_uploaded",
		},
		{
			name: "disallowed extension",
			proof: Proof{
				Filename:         "receipt.exe",
				DeclaredAmount:   9900,
				UploadedAt:       now,
				PaymentCreatedAt: now.Add(-time.Hour),
			},
			wantSuccess: false,
			failedCheck: "proof_valid_format",
		},
		{
			name: "negative declared amount",
			proof: Proof{
				Filename:         "receipt.png",
				DeclaredAmount:   -1,
				UploadedAt:       now,
				PaymentCreatedAt: now.Add(-time.Hour),
			},
			wantSuccess: false,
			failedCheck: "amount_sane",
		},
		{
			name: "upload too long after payment",
			proof: Proof{
				Filename:         "receipt.jpg",
				DeclaredAmount:   9900,
				UploadedAt:       now,
				PaymentCreatedAt: now.Add(-48 * time.Hour),
			},
			wantSuccess: false,
			failedCheck: "timestamp_recent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, nil, nil)

			result, err := svc.VerifyBankTransferPayment(context.Background(), "pay_1", tt.proof)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.failedCheck, result.FailedCheck)
			assert.True(t, result.RequiresManualApproval,
				"bank transfer results always require manual approval")
		})
	}
}

func TestVerifyBankTransferPaymentDuplicateProof(t *testing.T) {
	svc := newTestService(t, nil, nil)
	proof := Proof{
		Filename:         "receipt.pdf",
		DeclaredAmount:   9900,
		UploadedAt:       time.Now(),
		PaymentCreatedAt: time.Now().Add(-time.Hour),
	}

	first, err := svc.VerifyBankTransferPayment(context.Background(), "pay_1", proof)
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := svc.VerifyBankTransferPayment(context.Background(), "pay_1", proof)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, "duplicate_check", second.FailedCheck)

	// a different payment with its own proof is unaffected
	other, err := svc.VerifyBankTransferPayment(context.Background(), "pay_2", proof)
	require.NoError(t, err)
	assert.True(t, other.Success)

	// a different file for the same payment is a new proof, not a duplicate
	renamed := proof
	renamed.Filename = "receipt_v2.pdf"
	fresh, err := svc.VerifyBankTransferPayment(context.Background(), "pay_1", renamed)
	require.NoError(t, err)
	assert.True(t, fresh.Success)
}

func TestFingerprint(t *testing.T) {
	at := time.Unix(1700000000, 0)

	a := Fingerprint("pay_1", "receipt.pdf", 9900, at)
	b := Fingerprint("pay_1", "receipt.pdf", 9900, at)
	c := Fingerprint("pay_2", "receipt.pdf", 9900, at)
	d := Fingerprint("pay_1", "receipt_v2.pdf", 9900, at)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d, "the file name is part of the fingerprint")
	assert.Len(t, a, 64)

	assert.True(t, VerifyFingerprint(a, b))
	assert.False(t, VerifyFingerprint(a, c))
}
