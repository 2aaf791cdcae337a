package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paypipe/internal/audit"
	"paypipe/internal/config"
	"paypipe/internal/logger"
)

type fakeSource struct {
	mu       sync.Mutex
	pending  []PaymentSnapshot
	payments map[string]PaymentSnapshot
	fetchErr error
	markErr  error
	marked   []string
}

func (s *fakeSource) FetchPending(context.Context) ([]PaymentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.pending, nil
}

func (s *fakeSource) FetchPayment(_ context.Context, paymentID string) (PaymentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return PaymentSnapshot{}, s.fetchErr
	}
	payment, ok := s.payments[paymentID]
	if !ok {
		return PaymentSnapshot{}, fmt.Errorf("payment %s not found", paymentID)
	}
	return payment, nil
}

func (s *fakeSource) MarkConfirmed(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, paymentID)
	return nil
}

func (s *fakeSource) markedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.marked...)
}

type fakeConfirmer struct {
	mu        sync.Mutex
	err       error
	confirmed []string
}

func (c *fakeConfirmer) Confirm(_ context.Context, payment PaymentSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.confirmed = append(c.confirmed, payment.ID)
	return nil
}

func (c *fakeConfirmer) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.confirmed...)
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		PollInterval: time.Second,
		ErrorBackoff: 2 * time.Second,
		Rules: map[string]config.RuleConfig{
			"pix":           {AutoConfirmAfter: 5 * time.Minute, MaxWait: 24 * time.Hour},
			"stripe":        {AutoConfirmAfter: time.Minute, MaxWait: 2 * time.Hour},
			"paypal":        {AutoConfirmAfter: 2 * time.Minute, MaxWait: 4 * time.Hour},
			"bank_transfer": {AutoConfirmAfter: 60 * time.Minute, MaxWait: 72 * time.Hour, RequireProof: true},
		},
	}
}

func newTestMonitor(source StatusSource, confirmer Confirmer) *Monitor {
	return New(testMonitorConfig(), source, confirmer, audit.NopRecorder{}, logger.NopLogger())
}

func pixPayment(id string, age time.Duration) PaymentSnapshot {
	return PaymentSnapshot{
		ID:        id,
		Status:    "pending",
		Method:    "pix",
		Email:     "buyer@example.com",
		Amount:    9900,
		Currency:  "BRL",
		CreatedAt: time.Now().Add(-age),
	}
}

func TestEvaluateConfirmsEligiblePayment(t *testing.T) {
	tests := []struct {
		name      string
		age       time.Duration
		confirmed bool
	}{
		{name: "below threshold stays pending", age: 4 * time.Minute, confirmed: false},
		{name: "past threshold confirms", age: 6 * time.Minute, confirmed: true},
		{name: "exactly at threshold confirms", age: 5 * time.Minute, confirmed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			confirmer := &fakeConfirmer{}
			m := newTestMonitor(&fakeSource{}, confirmer)

			m.evaluate(context.Background(), pixPayment("pay_1", tc.age), time.Now())

			if tc.confirmed {
				assert.Equal(t, []string{"pay_1"}, confirmer.ids())
				assert.Equal(t, 1, m.GetStats().AutoConfirmed)
			} else {
				assert.Empty(t, confirmer.ids())
			}
		})
	}
}

func TestEvaluateExpiryWinsOverEligibility(t *testing.T) {
	// 25h old pix payment is past both autoConfirmAfter and maxWait; it must
	// expire, never confirm
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(&fakeSource{}, confirmer)

	m.evaluate(context.Background(), pixPayment("pay_old", 25*time.Hour), time.Now())

	assert.Empty(t, confirmer.ids())
	stats := m.GetStats()
	assert.Equal(t, 1, stats.ExpiredPayments)
	assert.Equal(t, 0, stats.AutoConfirmed)
}

func TestEvaluateBankTransferRequiresProof(t *testing.T) {
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(&fakeSource{}, confirmer)

	payment := PaymentSnapshot{
		ID:        "pay_bt",
		Status:    "pending_approval",
		Method:    "bank_transfer",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	m.evaluate(context.Background(), payment, time.Now())
	assert.Empty(t, confirmer.ids(), "no proof uploaded yet")

	payment.ProofUploaded = true
	m.evaluate(context.Background(), payment, time.Now())
	assert.Equal(t, []string{"pay_bt"}, confirmer.ids())
}

func TestEvaluateExpiresProoflessBankTransferPastMaxWait(t *testing.T) {
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(&fakeSource{}, confirmer)

	payment := PaymentSnapshot{
		ID:        "pay_bt",
		Status:    "pending_approval",
		Method:    "bank_transfer",
		CreatedAt: time.Now().Add(-73 * time.Hour),
	}
	m.evaluate(context.Background(), payment, time.Now())

	assert.Empty(t, confirmer.ids())
	assert.Equal(t, 1, m.GetStats().ExpiredPayments)
}

type warnSpy struct {
	logger.Logger
	mu    sync.Mutex
	warns []string
}

func (s *warnSpy) Warnw(msg string, _ ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warns = append(s.warns, msg)
}

func TestEvaluateWarnsOnUnknownMethod(t *testing.T) {
	spy := &warnSpy{Logger: logger.NopLogger()}
	m := New(testMonitorConfig(), &fakeSource{}, &fakeConfirmer{}, audit.NopRecorder{}, spy)

	unknown := pixPayment("pay_crypto", time.Hour)
	unknown.Method = "crypto"
	m.evaluate(context.Background(), unknown, time.Now())

	spy.mu.Lock()
	defer spy.mu.Unlock()
	require.Len(t, spy.warns, 1)
	assert.Contains(t, spy.warns[0], "no rule for payment method")
}

func TestEvaluateSkipsNonPendingAndUnknownMethod(t *testing.T) {
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(&fakeSource{}, confirmer)

	paid := pixPayment("pay_done", time.Hour)
	paid.Status = "approved"
	m.evaluate(context.Background(), paid, time.Now())

	unknown := pixPayment("pay_crypto", time.Hour)
	unknown.Method = "crypto"
	m.evaluate(context.Background(), unknown, time.Now())

	assert.Empty(t, confirmer.ids())
	stats := m.GetStats()
	assert.Equal(t, 2, stats.TotalMonitored)
	assert.Equal(t, 0, stats.AutoConfirmed)
	assert.Equal(t, 0, stats.ExpiredPayments)
}

func TestEvaluateConfirmerErrorCountsAsError(t *testing.T) {
	confirmer := &fakeConfirmer{err: fmt.Errorf("store unavailable")}
	m := newTestMonitor(&fakeSource{}, confirmer)

	m.evaluate(context.Background(), pixPayment("pay_1", 10*time.Minute), time.Now())

	stats := m.GetStats()
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.AutoConfirmed)
}

func TestCheckPendingConfirmsAtMostOnce(t *testing.T) {
	// the status API may keep listing a payment as pending for a few polls
	// after the confirmation was submitted; only the first pass may act
	source := &fakeSource{pending: []PaymentSnapshot{pixPayment("pay_1", 10*time.Minute)}}
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(source, confirmer)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.checkPending(context.Background()))
	}

	assert.Equal(t, []string{"pay_1"}, confirmer.ids())
	assert.Equal(t, []string{"pay_1"}, source.markedIDs())
	assert.Equal(t, 1, m.GetStats().AutoConfirmed)
}

func TestCheckPendingGuardsWhenMarkConfirmedFails(t *testing.T) {
	source := &fakeSource{
		pending: []PaymentSnapshot{pixPayment("pay_1", 10*time.Minute)},
		markErr: fmt.Errorf("callback unreachable"),
	}
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(source, confirmer)

	require.NoError(t, m.checkPending(context.Background()))
	require.NoError(t, m.checkPending(context.Background()))

	assert.Equal(t, []string{"pay_1"}, confirmer.ids(),
		"in-process guard holds even when the source callback fails")
}

func TestSubmittedGuardPrunedWhenPaymentLeavesFeed(t *testing.T) {
	source := &fakeSource{pending: []PaymentSnapshot{pixPayment("pay_1", 10*time.Minute)}}
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(source, confirmer)

	require.NoError(t, m.checkPending(context.Background()))
	assert.True(t, m.alreadySubmitted("pay_1"))

	source.mu.Lock()
	source.pending = nil
	source.mu.Unlock()

	require.NoError(t, m.checkPending(context.Background()))
	assert.False(t, m.alreadySubmitted("pay_1"), "guard entry dropped once the feed no longer lists the payment")
}

func TestForceCheck(t *testing.T) {
	source := &fakeSource{payments: map[string]PaymentSnapshot{
		"pay_eligible": pixPayment("pay_eligible", 10*time.Minute),
		"pay_young":    pixPayment("pay_young", time.Minute),
		"pay_expired":  pixPayment("pay_expired", 25*time.Hour),
	}}
	paid := pixPayment("pay_paid", 10*time.Minute)
	paid.Status = "approved"
	source.payments["pay_paid"] = paid

	confirmer := &fakeConfirmer{}
	m := newTestMonitor(source, confirmer)

	res, err := m.ForceCheck(context.Background(), "pay_eligible")
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmed, res.Action)
	assert.Equal(t, 1, m.GetStats().ManualConfirmations, "forced confirmations count as manual")

	res, err = m.ForceCheck(context.Background(), "pay_young")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, res.Action)
	assert.Contains(t, res.Reason, "eligible for auto-confirmation")

	res, err = m.ForceCheck(context.Background(), "pay_expired")
	require.NoError(t, err)
	assert.Equal(t, ActionExpired, res.Action)

	res, err = m.ForceCheck(context.Background(), "pay_paid")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, res.Action)
	assert.Contains(t, res.Reason, "approved")

	_, err = m.ForceCheck(context.Background(), "pay_missing")
	assert.Error(t, err)
}

func TestUpdateRuleMergesPatch(t *testing.T) {
	m := newTestMonitor(&fakeSource{}, &fakeConfirmer{})

	newWait := 30 * time.Minute
	m.UpdateRule("pix", RulePatch{AutoConfirmAfter: &newWait})

	rules := m.Rules()
	assert.Equal(t, 30*time.Minute, rules["pix"].AutoConfirmAfter)
	assert.Equal(t, 24*time.Hour, rules["pix"].MaxWait, "untouched fields survive the patch")
	assert.False(t, rules["pix"].RequireProof)

	proof := true
	m.UpdateRule("pix", RulePatch{RequireProof: &proof})
	assert.True(t, m.Rules()["pix"].RequireProof)
}

func TestUpdateRuleIgnoresUnknownMethod(t *testing.T) {
	m := newTestMonitor(&fakeSource{}, &fakeConfirmer{})

	wait := time.Minute
	m.UpdateRule("crypto", RulePatch{AutoConfirmAfter: &wait})

	_, ok := m.Rules()["crypto"]
	assert.False(t, ok, "unknown methods never gain a rule")
	assert.Len(t, m.Rules(), 4)
}

func TestStartStopIdempotent(t *testing.T) {
	source := &fakeSource{pending: []PaymentSnapshot{pixPayment("pay_1", 10*time.Minute)}}
	confirmer := &fakeConfirmer{}
	m := newTestMonitor(source, confirmer)

	m.Start()
	m.Start() // logged no-op
	assert.True(t, m.GetStats().Running)

	assert.Eventually(t, func() bool {
		return len(confirmer.ids()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop() // logged no-op
	assert.False(t, m.GetStats().Running)
}

func TestCheckPendingPropagatesSourceError(t *testing.T) {
	source := &fakeSource{fetchErr: fmt.Errorf("connection refused")}
	m := newTestMonitor(source, &fakeConfirmer{})

	assert.Error(t, m.checkPending(context.Background()))
}
