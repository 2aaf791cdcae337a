package verification

import (
	"context"
	"time"
)

// Result is the outcome of verifying one payment. Checks holds every
// individual predicate by name so callers and operators can see exactly
// which one failed.
type Result struct {
	Success                bool            `json:"success"`
	Method                 string          `json:"method"`
	PaymentID              string          `json:"payment_id"`
	Checks                 map[string]bool `json:"checks"`
	FailedCheck            string          `json:"failed_check,omitempty"`
	RequiresManualApproval bool            `json:"requires_manual_approval"`
	VerifiedAt             time.Time       `json:"verified_at"`
}

// Charge is a card charge as reported by the card processor.
type Charge struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Refunded    bool      `json:"refunded"`
	RiskLevel   string    `json:"risk_level"`
	OutcomeType string    `json:"outcome_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Order is a wallet order as reported by the wallet provider.
type Order struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Refunded  bool      `json:"refunded"`
	CreatedAt time.Time `json:"created_at"`
}

// Proof is an uploaded bank transfer receipt awaiting manual review.
type Proof struct {
	Filename         string    `json:"filename"`
	DeclaredAmount   int64     `json:"declared_amount"`
	UploadedAt       time.Time `json:"uploaded_at"`
	PaymentCreatedAt time.Time `json:"payment_created_at"`
}

// ChargeProvider looks up a charge at the card processor.
type ChargeProvider interface {
	GetCharge(ctx context.Context, chargeID string) (Charge, error)
}

// OrderProvider looks up an order at the wallet provider.
type OrderProvider interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// FraudChecker flags suspicious charges. The decision logic is an injected
// expression, not code, so operators can tune it without a deploy.
type FraudChecker interface {
	IsSuspicious(ctx context.Context, charge Charge) (bool, error)
}

// DuplicateChecker remembers proof fingerprints so the same receipt cannot
// back two different payments.
type DuplicateChecker interface {
	CheckAndStore(ctx context.Context, fingerprint string) (duplicate bool, err error)
}
