package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paypipe/internal/audit"
	"paypipe/internal/config"
	"paypipe/internal/logger"
	"paypipe/pkg/errors"
	"paypipe/pkg/metrics"
)

// Confirmer receives payments the monitor decided to auto-confirm. The
// confirmation job store implements it through an adapter in the app wiring.
type Confirmer interface {
	Confirm(ctx context.Context, payment PaymentSnapshot) error
}

// Stats is the monitor's cumulative activity since start.
type Stats struct {
	TotalMonitored      int  `json:"total_monitored"`
	AutoConfirmed       int  `json:"auto_confirmed"`
	ManualConfirmations int  `json:"manual_confirmations"`
	ExpiredPayments     int  `json:"expired_payments"`
	Errors              int  `json:"errors"`
	Running             bool `json:"running"`
}

// CheckResult is the outcome of an on-demand single-payment check.
type CheckResult struct {
	PaymentID string `json:"payment_id"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

const (
	ActionConfirmed = "confirmed"
	ActionExpired   = "expired"
	ActionNone      = "no_action_needed"
)

// Monitor polls the status API for pending payments and applies per-method
// confirmation rules. Start and Stop are idempotent; a second Start logs a
// warning and does nothing.
type Monitor struct {
	cfg       config.MonitorConfig
	source    StatusSource
	confirmer Confirmer
	logger    logger.Logger
	audit     audit.Recorder

	rulesMu sync.RWMutex
	rules   map[string]Rule

	// submitted holds ids whose confirmation was already handed to the
	// confirmer, so a payment still listed as pending on the next poll is
	// not confirmed twice. Entries are dropped once the payment leaves
	// the feed.
	submittedMu sync.Mutex
	submitted   map[string]struct{}

	statsMu sync.Mutex
	stats   Stats

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.MonitorConfig, source StatusSource, confirmer Confirmer, recorder audit.Recorder, log logger.Logger) *Monitor {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Monitor{
		cfg:       cfg,
		source:    source,
		confirmer: confirmer,
		logger:    log,
		audit:     recorder,
		rules:     rulesFromConfig(cfg.Rules),
		submitted: make(map[string]struct{}),
	}
}

// Start launches the polling loop. The loop lives until Stop is called; it
// is not tied to any caller's context. Calling Start on a running monitor
// is a logged no-op.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		m.logger.Warnw("monitor already running, ignoring start")
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.statsMu.Lock()
	m.stats.Running = true
	m.statsMu.Unlock()

	go m.loop(loopCtx)
	m.logger.Infow("monitor started",
		"poll_interval", m.cfg.PollInterval,
		"error_backoff", m.cfg.ErrorBackoff,
		"rules", len(m.rules))
}

// Stop halts the polling loop and waits for the current pass to finish.
// Calling Stop on a stopped monitor is a logged no-op.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		m.logger.Warnw("monitor not running, ignoring stop")
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.statsMu.Lock()
	m.stats.Running = false
	m.statsMu.Unlock()

	m.logger.Infow("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	for {
		interval := m.cfg.PollInterval
		if err := m.checkPending(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.statsMu.Lock()
			m.stats.Errors++
			m.statsMu.Unlock()
			interval = m.cfg.ErrorBackoff
			m.logger.Errorw("monitor pass failed, backing off",
				"error", err,
				"backoff", interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Monitor) checkPending(ctx context.Context) error {
	payments, err := m.source.FetchPending(ctx)
	if err != nil {
		return err
	}

	m.pruneSubmitted(payments)

	now := time.Now()
	for _, payment := range payments {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.evaluate(ctx, payment, now)
	}
	return nil
}

// pruneSubmitted drops guard entries for payments no longer in the pending
// feed; their confirmation stuck at the source.
func (m *Monitor) pruneSubmitted(pending []PaymentSnapshot) {
	ids := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		ids[p.ID] = struct{}{}
	}

	m.submittedMu.Lock()
	defer m.submittedMu.Unlock()
	for id := range m.submitted {
		if _, ok := ids[id]; !ok {
			delete(m.submitted, id)
		}
	}
}

func (m *Monitor) alreadySubmitted(paymentID string) bool {
	m.submittedMu.Lock()
	defer m.submittedMu.Unlock()
	_, ok := m.submitted[paymentID]
	return ok
}

func (m *Monitor) markSubmitted(paymentID string) {
	m.submittedMu.Lock()
	defer m.submittedMu.Unlock()
	m.submitted[paymentID] = struct{}{}
}

// evaluate applies the method's rule to one payment. Expiry is checked
// before eligibility so a payment past maxWait is never confirmed, even
// when it also satisfies the confirmation criteria.
func (m *Monitor) evaluate(ctx context.Context, payment PaymentSnapshot, now time.Time) {
	m.statsMu.Lock()
	m.stats.TotalMonitored++
	m.statsMu.Unlock()

	if payment.Status != "pending" && payment.Status != "pending_approval" {
		metrics.MonitorEvaluationsTotal.WithLabelValues("skipped_status").Inc()
		return
	}

	m.rulesMu.RLock()
	rule, ok := m.rules[payment.Method]
	m.rulesMu.RUnlock()
	if !ok {
		metrics.MonitorEvaluationsTotal.WithLabelValues("skipped_unknown_method").Inc()
		m.logger.Warnw("no rule for payment method, skipping",
			"payment_id", payment.ID,
			"method", payment.Method)
		return
	}

	elapsed := now.Sub(payment.CreatedAt)

	if elapsed >= rule.MaxWait {
		m.expire(ctx, payment, elapsed)
		return
	}

	if rule.RequireProof && !payment.ProofUploaded {
		metrics.MonitorEvaluationsTotal.WithLabelValues("waiting_proof").Inc()
		return
	}
	if elapsed < rule.AutoConfirmAfter {
		metrics.MonitorEvaluationsTotal.WithLabelValues("waiting").Inc()
		return
	}
	if m.alreadySubmitted(payment.ID) {
		metrics.MonitorEvaluationsTotal.WithLabelValues("already_submitted").Inc()
		return
	}

	m.confirm(ctx, payment, elapsed, false)
}

func (m *Monitor) confirm(ctx context.Context, payment PaymentSnapshot, elapsed time.Duration, manual bool) bool {
	if err := m.confirmer.Confirm(ctx, payment); err != nil {
		metrics.MonitorEvaluationsTotal.WithLabelValues("confirm_error").Inc()
		m.statsMu.Lock()
		m.stats.Errors++
		m.statsMu.Unlock()
		m.logger.Errorw("auto-confirmation failed",
			"payment_id", payment.ID,
			"method", payment.Method,
			"error", err)
		return false
	}

	m.markSubmitted(payment.ID)
	if err := m.source.MarkConfirmed(ctx, payment.ID); err != nil {
		m.logger.Warnw("failed to report confirmation to status source",
			"payment_id", payment.ID,
			"error", err)
	}

	metrics.MonitorEvaluationsTotal.WithLabelValues("confirmed").Inc()
	m.statsMu.Lock()
	if manual {
		m.stats.ManualConfirmations++
	} else {
		m.stats.AutoConfirmed++
	}
	m.statsMu.Unlock()

	m.logger.Infow("payment auto-confirmed",
		"payment_id", payment.ID,
		"method", payment.Method,
		"elapsed", elapsed,
		"manual", manual)

	rec := audit.NewRecord(audit.KindAutoConfirmed)
	rec.PaymentID = payment.ID
	rec.Details = map[string]interface{}{
		"method":  payment.Method,
		"elapsed": elapsed.String(),
		"manual":  manual,
	}
	if err := m.audit.Record(ctx, rec); err != nil {
		m.logger.Warnw("failed to record audit entry", "payment_id", payment.ID, "error", err)
	}
	return true
}

func (m *Monitor) expire(ctx context.Context, payment PaymentSnapshot, elapsed time.Duration) {
	metrics.MonitorEvaluationsTotal.WithLabelValues("expired").Inc()
	m.statsMu.Lock()
	m.stats.ExpiredPayments++
	m.statsMu.Unlock()

	m.logger.Warnw("payment exceeded maximum wait, marking expired",
		"payment_id", payment.ID,
		"method", payment.Method,
		"elapsed", elapsed)

	rec := audit.NewRecord(audit.KindPaymentExpired)
	rec.PaymentID = payment.ID
	rec.Details = map[string]interface{}{
		"method":  payment.Method,
		"elapsed": elapsed.String(),
	}
	if err := m.audit.Record(ctx, rec); err != nil {
		m.logger.Warnw("failed to record audit entry", "payment_id", payment.ID, "error", err)
	}
}

// ForceCheck evaluates one payment on demand, outside the polling schedule.
// A confirmation triggered this way counts as manual in the stats.
func (m *Monitor) ForceCheck(ctx context.Context, paymentID string) (CheckResult, error) {
	payment, err := m.source.FetchPayment(ctx, paymentID)
	if err != nil {
		return CheckResult{}, err
	}

	if payment.Status != "pending" && payment.Status != "pending_approval" {
		return CheckResult{
			PaymentID: paymentID,
			Action:    ActionNone,
			Reason:    fmt.Sprintf("payment status is %s", payment.Status),
		}, nil
	}

	m.rulesMu.RLock()
	rule, ok := m.rules[payment.Method]
	m.rulesMu.RUnlock()
	if !ok {
		return CheckResult{}, errors.ErrConfiguration.WithDetail("message",
			fmt.Sprintf("no rule for payment method %s", payment.Method))
	}

	elapsed := time.Since(payment.CreatedAt)
	if elapsed >= rule.MaxWait {
		m.expire(ctx, payment, elapsed)
		return CheckResult{PaymentID: paymentID, Action: ActionExpired}, nil
	}
	if rule.RequireProof && !payment.ProofUploaded {
		return CheckResult{
			PaymentID: paymentID,
			Action:    ActionNone,
			Reason:    "waiting for payment proof",
		}, nil
	}
	if elapsed < rule.AutoConfirmAfter {
		return CheckResult{
			PaymentID: paymentID,
			Action:    ActionNone,
			Reason:    fmt.Sprintf("eligible for auto-confirmation in %s", rule.AutoConfirmAfter-elapsed),
		}, nil
	}
	if m.alreadySubmitted(payment.ID) {
		return CheckResult{
			PaymentID: paymentID,
			Action:    ActionNone,
			Reason:    "confirmation already submitted",
		}, nil
	}

	if !m.confirm(ctx, payment, elapsed, true) {
		return CheckResult{}, errors.ErrTransientInfra.WithDetail("message", "confirmation failed")
	}
	return CheckResult{PaymentID: paymentID, Action: ActionConfirmed}, nil
}

// UpdateRule merges a patch into an existing method rule. Unknown methods
// are rejected with a logged warning and no change.
func (m *Monitor) UpdateRule(method string, patch RulePatch) {
	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()

	rule, ok := m.rules[method]
	if !ok {
		m.logger.Warnw("ignoring rule update for unknown payment method", "method", method)
		return
	}
	if patch.AutoConfirmAfter != nil {
		rule.AutoConfirmAfter = *patch.AutoConfirmAfter
	}
	if patch.MaxWait != nil {
		rule.MaxWait = *patch.MaxWait
	}
	if patch.RequireProof != nil {
		rule.RequireProof = *patch.RequireProof
	}
	m.rules[method] = rule

	m.logger.Infow("payment rule updated",
		"method", method,
		"auto_confirm_after", rule.AutoConfirmAfter,
		"max_wait", rule.MaxWait,
		"require_proof", rule.RequireProof)
}

// Rules returns a copy of the active rule set.
func (m *Monitor) Rules() map[string]Rule {
	m.rulesMu.RLock()
	defer m.rulesMu.RUnlock()

	rules := make(map[string]Rule, len(m.rules))
	for method, rule := range m.rules {
		rules[method] = rule
	}
	return rules
}

func (m *Monitor) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}
