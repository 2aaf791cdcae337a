package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePaymentConfirmation Type = "payment_confirmation"
	TypePaymentPending      Type = "payment_pending"
	TypePaymentApproved     Type = "payment_approved"
	TypePaymentRejected     Type = "payment_rejected"
	TypeSystemAlert         Type = "system_alert"
)

type Recipient string

const (
	RecipientCustomer Recipient = "customer"
	RecipientAdmin    Recipient = "admin"
)

// Priority is informational: insertion order is preserved, no priority
// queue is involved.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is one outbound notification. Only the payload fields relevant to
// its Type are populated; the rest stay at their zero value.
type Message struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Recipient Recipient `json:"recipient"`
	Priority  Priority  `json:"priority"`

	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Serial    string `json:"serial,omitempty"`
	Method    string `json:"method,omitempty"`
	Reason    string `json:"reason,omitempty"`
	AlertType string `json:"alert_type,omitempty"`
	AlertText string `json:"alert_text,omitempty"`
	Severity  string `json:"severity,omitempty"`

	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PaymentInfo carries the business fields producers hand to the dispatcher
// when fanning out payment-related messages.
type PaymentInfo struct {
	Email         string
	Name          string
	PaymentID     string
	Amount        int64
	Currency      string
	Serial        string
	Method        string
	ProofFilename string
}

func newMessage(t Type, recipient Recipient, priority Priority) Message {
	return Message{
		ID:         uuid.New().String(),
		Type:       t,
		Recipient:  recipient,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

// NewPaymentConfirmation builds the confirmation message for one recipient.
// The confirmation job store delivers these synchronously for both
// recipients; other producers may enqueue them instead.
func NewPaymentConfirmation(info PaymentInfo, recipient Recipient) Message {
	msg := newMessage(TypePaymentConfirmation, recipient, PriorityHigh)
	msg.Email = info.Email
	msg.Name = info.Name
	msg.PaymentID = info.PaymentID
	msg.Amount = info.Amount
	msg.Currency = info.Currency
	msg.Serial = info.Serial
	msg.Method = info.Method
	return msg
}
