package notification

import (
	"context"
	"sync"
	"time"

	"paypipe/internal/audit"
	"paypipe/internal/config"
	"paypipe/internal/logger"
	"paypipe/pkg/errors"
	"paypipe/pkg/metrics"
)

// failedMessage is a message waiting in the failed-list for its next retry.
type failedMessage struct {
	msg         Message
	lastAttempt time.Time
}

// Status is the dispatcher's operational snapshot.
type Status struct {
	QueueDepth          int  `json:"queue_depth"`
	RetryPending        int  `json:"retry_pending"`
	FailedCount         int  `json:"failed_count"`
	TransportConfigured bool `json:"transport_configured"`
}

// Dispatcher owns the outbound notification queue. Producers enqueue
// fire-and-forget; a single worker drains the queue and applies a
// fixed-interval retry policy to failures. Messages in the failed-list are
// only retried while the main queue is empty, so a sustained flood of new
// messages starves retries. That trade-off favors fresh mail.
type Dispatcher struct {
	cfg       config.NotificationConfig
	transport Transport
	renderer  *Renderer
	logger    logger.Logger
	audit     audit.Recorder

	mu     sync.Mutex
	queue  []Message
	failed []failedMessage
	// permanently dropped after exhausting retries
	failedCount int
}

func NewDispatcher(cfg config.NotificationConfig, transport Transport, renderer *Renderer, recorder audit.Recorder, log logger.Logger) *Dispatcher {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Dispatcher{
		cfg:       cfg,
		transport: transport,
		renderer:  renderer,
		logger:    log,
		audit:     recorder,
	}
}

// Enqueue appends a message to the main queue. It never blocks and never
// reports delivery errors back to the producer.
func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.Lock()
	d.queue = append(d.queue, msg)
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.NotificationQueueDepth.Set(float64(depth))
	d.logger.Debugw("notification enqueued",
		"notification_id", msg.ID,
		"type", msg.Type,
		"recipient", msg.Recipient,
		"queue_depth", depth)
}

// Deliver renders and sends a message synchronously, bypassing the queue.
// The confirmation job store uses it so both recipient sends share the
// job's own retry budget instead of the dispatcher's.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	return d.send(ctx, msg)
}

// Run drains the queue until ctx is cancelled. Failed-list retries are
// attempted only on passes where the main queue was empty.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Infow("notification dispatcher started",
		"poll_interval", d.cfg.PollInterval,
		"max_retries", d.cfg.MaxRetries,
		"retry_interval", d.cfg.RetryInterval)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Infow("notification dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.pass(ctx)
		}
	}
}

// GetStatus reports queue depths and transport availability.
func (d *Dispatcher) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		QueueDepth:          len(d.queue),
		RetryPending:        len(d.failed),
		FailedCount:         d.failedCount,
		TransportConfigured: d.transport != nil,
	}
}

// pass is one worker iteration. A panic in rendering or transport code is
// contained here so the loop survives a poisoned message.
func (d *Dispatcher) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Panic recovered during notification pass",
				"error", errors.RecoverPanic(r))
		}
	}()

	if drained := d.drainQueue(ctx); drained == 0 {
		d.retryFailed(ctx)
	}
}

func (d *Dispatcher) drainQueue(ctx context.Context) int {
	drained := 0
	for {
		select {
		case <-ctx.Done():
			return drained
		default:
		}

		msg, ok := d.popQueue()
		if !ok {
			return drained
		}
		drained++
		d.processMessage(ctx, msg)
	}
}

func (d *Dispatcher) popQueue() (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Message{}, false
	}
	msg := d.queue[0]
	d.queue = d.queue[1:]
	metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
	return msg, true
}

func (d *Dispatcher) processMessage(ctx context.Context, msg Message) {
	msg.Attempts++
	err := d.send(ctx, msg)
	if err == nil {
		return
	}

	appErr, fatal := errors.ErrInternal.WithCause(err), false
	if e, ok := err.(*errors.Error); ok {
		appErr = e
		fatal = !e.IsRetryable()
	}
	if fatal {
		// rendering or addressing problem, retrying cannot fix it
		d.drop(ctx, msg, appErr)
		return
	}
	if msg.Attempts >= d.cfg.MaxRetries {
		d.drop(ctx, msg, errors.ErrDeliveryFailed.WithCause(err))
		return
	}

	d.logger.Warnw("notification delivery failed, scheduling retry",
		"notification_id", msg.ID,
		"type", msg.Type,
		"attempts", msg.Attempts,
		"error", err)
	d.pushFailed(msg)
}

// retryFailed attempts every failed message whose retry interval has
// elapsed. Messages that fail again keep their slot until the attempt
// budget runs out.
func (d *Dispatcher) retryFailed(ctx context.Context) {
	due := d.takeDueRetries()
	for _, msg := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg.Attempts++
		err := d.send(ctx, msg)
		if err == nil {
			continue
		}

		if msg.Attempts >= d.cfg.MaxRetries {
			d.drop(ctx, msg, errors.ErrDeliveryFailed.WithCause(err))
			continue
		}
		d.logger.Warnw("notification retry failed",
			"notification_id", msg.ID,
			"attempts", msg.Attempts,
			"max_retries", d.cfg.MaxRetries,
			"error", err)
		d.pushFailed(msg)
	}
}

func (d *Dispatcher) takeDueRetries() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var due []Message
	var remaining []failedMessage
	for _, f := range d.failed {
		if now.Sub(f.lastAttempt) >= d.cfg.RetryInterval {
			due = append(due, f.msg)
		} else {
			remaining = append(remaining, f)
		}
	}
	d.failed = remaining
	metrics.NotificationFailedDepth.Set(float64(len(d.failed)))
	return due
}

func (d *Dispatcher) pushFailed(msg Message) {
	d.mu.Lock()
	d.failed = append(d.failed, failedMessage{msg: msg, lastAttempt: time.Now()})
	depth := len(d.failed)
	d.mu.Unlock()
	metrics.NotificationFailedDepth.Set(float64(depth))
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, cause error) {
	d.mu.Lock()
	d.failedCount++
	d.mu.Unlock()

	metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "dropped").Inc()
	d.logger.Errorw("notification dropped",
		"notification_id", msg.ID,
		"type", msg.Type,
		"recipient", msg.Recipient,
		"attempts", msg.Attempts,
		"error", cause)

	rec := audit.NewRecord(audit.KindNotificationDropped)
	rec.PaymentID = msg.PaymentID
	rec.Details = map[string]interface{}{
		"notification_id": msg.ID,
		"type":            string(msg.Type),
		"recipient":       string(msg.Recipient),
		"attempts":        msg.Attempts,
		"error":           cause.Error(),
	}
	if err := d.audit.Record(ctx, rec); err != nil {
		d.logger.Warnw("failed to record audit entry", "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if d.transport == nil {
		return errors.ErrConfiguration.WithDetail("message", "no transport configured")
	}

	rendered, err := d.renderer.Render(msg)
	if err != nil {
		return err
	}
	if err := d.transport.Send(ctx, rendered); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "error").Inc()
		return err
	}

	metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "sent").Inc()
	d.logger.Infow("notification sent",
		"notification_id", msg.ID,
		"type", msg.Type,
		"recipient", msg.Recipient,
		"to", rendered.To)
	return nil
}

// EnqueuePaymentConfirmation fans the confirmation out to the customer and
// the admin mailbox.
func (d *Dispatcher) EnqueuePaymentConfirmation(info PaymentInfo) {
	d.Enqueue(NewPaymentConfirmation(info, RecipientCustomer))
	d.Enqueue(NewPaymentConfirmation(info, RecipientAdmin))
}

// EnqueuePaymentPending notifies the customer that review is in progress and
// alerts the admin that a payment needs manual attention.
func (d *Dispatcher) EnqueuePaymentPending(info PaymentInfo) {
	customer := newMessage(TypePaymentPending, RecipientCustomer, PriorityMedium)
	customer.Email = info.Email
	customer.Name = info.Name
	customer.PaymentID = info.PaymentID
	customer.Amount = info.Amount
	customer.Currency = info.Currency
	customer.Method = info.Method
	d.Enqueue(customer)

	admin := newMessage(TypePaymentPending, RecipientAdmin, PriorityUrgent)
	admin.Email = info.Email
	admin.Name = info.Name
	admin.PaymentID = info.PaymentID
	admin.Amount = info.Amount
	admin.Currency = info.Currency
	admin.Method = info.Method
	d.Enqueue(admin)
}

// EnqueuePaymentApproved tells the customer a reviewed payment went through.
func (d *Dispatcher) EnqueuePaymentApproved(info PaymentInfo) {
	msg := newMessage(TypePaymentApproved, RecipientCustomer, PriorityHigh)
	msg.Email = info.Email
	msg.Name = info.Name
	msg.PaymentID = info.PaymentID
	msg.Serial = info.Serial
	d.Enqueue(msg)
}

// EnqueuePaymentRejected tells the customer a reviewed payment was declined.
func (d *Dispatcher) EnqueuePaymentRejected(info PaymentInfo, reason string) {
	msg := newMessage(TypePaymentRejected, RecipientCustomer, PriorityHigh)
	msg.Email = info.Email
	msg.Name = info.Name
	msg.PaymentID = info.PaymentID
	msg.Reason = reason
	d.Enqueue(msg)
}

// EnqueueSystemAlert sends an operational alert to the admin mailbox.
func (d *Dispatcher) EnqueueSystemAlert(alertType, text, severity string) {
	msg := newMessage(TypeSystemAlert, RecipientAdmin, PriorityUrgent)
	msg.AlertType = alertType
	msg.AlertText = text
	msg.Severity = severity
	d.Enqueue(msg)
}
