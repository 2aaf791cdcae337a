package confirmation

import (
	"time"
)

// JobStatus transitions are monotonic: once a job leaves pending it never
// comes back.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusConfirmed JobStatus = "confirmed"
	StatusFailed    JobStatus = "failed"
	StatusExpired   JobStatus = "expired"
	StatusCancelled JobStatus = "cancelled"
)

// Snapshot is the immutable payment data captured when a job is created.
// Later changes to the payment do not flow into the job.
type Snapshot struct {
	PaymentID string `json:"payment_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Serial    string `json:"serial"`
}

// Job is one confirmation delivery task tracked by the store.
type Job struct {
	ID       string    `json:"id"`
	Snapshot Snapshot  `json:"snapshot"`
	Status   JobStatus `json:"status"`
	Attempts int       `json:"attempts"`

	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`

	// retry bookkeeping, not part of the external view
	nextRetryAt time.Time
	queued      bool
}

// Stats aggregates over every job still tracked by the store, including
// confirmed jobs that have not been purged yet.
type Stats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Confirmed   int     `json:"confirmed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	QueueDepth  int     `json:"queue_depth"`
}
