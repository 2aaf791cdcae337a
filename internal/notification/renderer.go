package notification

import (
	"fmt"
	"strings"

	"paypipe/pkg/errors"
)

// Renderer turns a Message into an addressed plain-text email.
type Renderer struct {
	adminEmail string
	fromEmail  string
}

func NewRenderer(adminEmail, fromEmail string) *Renderer {
	return &Renderer{adminEmail: adminEmail, fromEmail: fromEmail}
}

// Rendered is the transport-ready form of a message.
type Rendered struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Render resolves the destination address and produces subject and body for
// the message type. Unknown types and missing addresses are validation
// errors, not transport failures, so the dispatcher drops them immediately.
func (r *Renderer) Render(msg Message) (Rendered, error) {
	to, err := r.resolveAddress(msg)
	if err != nil {
		return Rendered{}, err
	}

	var subject, body string
	switch msg.Type {
	case TypePaymentConfirmation:
		subject, body = r.renderConfirmation(msg)
	case TypePaymentPending:
		subject, body = r.renderPending(msg)
	case TypePaymentApproved:
		subject, body = r.renderApproved(msg)
	case TypePaymentRejected:
		subject, body = r.renderRejected(msg)
	case TypeSystemAlert:
		subject, body = r.renderAlert(msg)
	default:
		return Rendered{}, errors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown notification type: %s", msg.Type))
	}

	return Rendered{To: to, From: r.fromEmail, Subject: subject, Body: body}, nil
}

func (r *Renderer) resolveAddress(msg Message) (string, error) {
	switch msg.Recipient {
	case RecipientAdmin:
		if r.adminEmail == "" {
			return "", errors.ErrConfiguration.WithDetail("message", "admin email is not configured")
		}
		return r.adminEmail, nil
	case RecipientCustomer:
		if msg.Email == "" {
			return "", errors.ErrValidation.WithDetail("message", "customer message has no email address")
		}
		return msg.Email, nil
	default:
		return "", errors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown recipient: %s", msg.Recipient))
	}
}

func (r *Renderer) renderConfirmation(msg Message) (string, string) {
	if msg.Recipient == RecipientAdmin {
		subject := fmt.Sprintf("Payment confirmed: %s", msg.PaymentID)
		body := joinLines(
			fmt.Sprintf("Payment %s was confirmed.", msg.PaymentID),
			fmt.Sprintf("Customer: %s <%s>", msg.Name, msg.Email),
			fmt.Sprintf("Amount: %s", formatAmount(msg.Amount, msg.Currency)),
			fmt.Sprintf("Method: %s", msg.Method),
			fmt.Sprintf("License serial: %s", msg.Serial),
		)
		return subject, body
	}
	subject := "Your payment is confirmed"
	body := joinLines(
		fmt.Sprintf("Hello %s,", displayName(msg.Name)),
		"",
		fmt.Sprintf("We confirmed your payment of %s.", formatAmount(msg.Amount, msg.Currency)),
		fmt.Sprintf("Your license serial is: %s", msg.Serial),
		"",
		"Thank you for your purchase.",
	)
	return subject, body
}

func (r *Renderer) renderPending(msg Message) (string, string) {
	if msg.Recipient == RecipientAdmin {
		subject := fmt.Sprintf("Payment pending review: %s", msg.PaymentID)
		body := joinLines(
			fmt.Sprintf("Payment %s is awaiting manual review.", msg.PaymentID),
			fmt.Sprintf("Customer: %s <%s>", msg.Name, msg.Email),
			fmt.Sprintf("Amount: %s", formatAmount(msg.Amount, msg.Currency)),
			fmt.Sprintf("Method: %s", msg.Method),
		)
		return subject, body
	}
	subject := "We received your payment"
	body := joinLines(
		fmt.Sprintf("Hello %s,", displayName(msg.Name)),
		"",
		fmt.Sprintf("We received your payment of %s and it is being reviewed.", formatAmount(msg.Amount, msg.Currency)),
		"You will get another email as soon as it is approved.",
	)
	return subject, body
}

func (r *Renderer) renderApproved(msg Message) (string, string) {
	subject := "Your payment was approved"
	body := joinLines(
		fmt.Sprintf("Hello %s,", displayName(msg.Name)),
		"",
		fmt.Sprintf("Your payment %s was approved.", msg.PaymentID),
		fmt.Sprintf("Your license serial is: %s", msg.Serial),
	)
	return subject, body
}

func (r *Renderer) renderRejected(msg Message) (string, string) {
	subject := "Your payment was not approved"
	body := joinLines(
		fmt.Sprintf("Hello %s,", displayName(msg.Name)),
		"",
		fmt.Sprintf("Unfortunately your payment %s was not approved.", msg.PaymentID),
		fmt.Sprintf("Reason: %s", msg.Reason),
		"",
		"Reply to this email if you believe this is a mistake.",
	)
	return subject, body
}

func (r *Renderer) renderAlert(msg Message) (string, string) {
	subject := fmt.Sprintf("[%s] system alert: %s", strings.ToUpper(msg.Severity), msg.AlertType)
	body := joinLines(
		fmt.Sprintf("Alert type: %s", msg.AlertType),
		fmt.Sprintf("Severity: %s", msg.Severity),
		"",
		msg.AlertText,
	)
	return subject, body
}

func displayName(name string) string {
	if name == "" {
		return "customer"
	}
	return name
}

func formatAmount(amount int64, currency string) string {
	value := float64(amount) / 100
	switch strings.ToUpper(currency) {
	case "BRL":
		return fmt.Sprintf("R$ %.2f", value)
	case "USD":
		return fmt.Sprintf("$ %.2f", value)
	default:
		return fmt.Sprintf("%.2f %s", value, strings.ToUpper(currency))
	}
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n")
}
