package verification

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"paypipe/internal/config"
	"paypipe/internal/logger"
	"paypipe/pkg/errors"
	"paypipe/pkg/metrics"
)

const (
	MethodCard         = "card"
	MethodWallet       = "wallet"
	MethodBankTransfer = "bank_transfer"
)

var allowedProofExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".pdf":  {},
}

// Expectation is what the payment record says the provider should have
// charged. Verification compares the provider's view against it.
type Expectation struct {
	PaymentID   string
	ProviderRef string
	Amount      int64
	Currency    string
}

// Service runs the per-method verification check lists. Provider lookups
// and the fraud and duplicate predicates are injected; an infrastructure
// failure in any of them is returned as an error, never folded into a
// failed check.
type Service struct {
	cfg     config.VerificationConfig
	charges ChargeProvider
	orders  OrderProvider
	fraud   FraudChecker
	dup     DuplicateChecker
	logger  logger.Logger
}

func NewService(cfg config.VerificationConfig, charges ChargeProvider, orders OrderProvider, fraud FraudChecker, dup DuplicateChecker, log logger.Logger) *Service {
	return &Service{
		cfg:     cfg,
		charges: charges,
		orders:  orders,
		fraud:   fraud,
		dup:     dup,
		logger:  log,
	}
}

// VerifyCardPayment checks a card charge against the expected payment. All
// checks are evaluated so the result shows every mismatch, not just the
// first.
func (s *Service) VerifyCardPayment(ctx context.Context, exp Expectation) (Result, error) {
	if s.charges == nil {
		return Result{}, errors.ErrConfiguration.WithDetail("message", "no charge provider configured")
	}

	charge, err := s.charges.GetCharge(ctx, exp.ProviderRef)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(MethodCard, "error").Inc()
		return Result{}, errors.Wrap(err, errors.ErrTransientInfra)
	}

	suspicious, err := s.fraud.IsSuspicious(ctx, charge)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(MethodCard, "error").Inc()
		return Result{}, errors.Wrap(err, errors.ErrTransientInfra)
	}

	checks := orderedChecks{
		{"amount_correct", charge.Amount == exp.Amount},
		{"currency_correct", strings.EqualFold(charge.Currency, exp.Currency)},
		{"status_succeeded", charge.Status == "succeeded"},
		{"not_refunded", !charge.Refunded},
		{"fraud_check", !suspicious},
		{"timestamp_valid", time.Since(charge.CreatedAt) <= s.cfg.MaxPaymentAge},
	}

	return s.finish(exp.PaymentID, MethodCard, checks, false), nil
}

// VerifyWalletPayment checks a wallet order against the expected payment.
func (s *Service) VerifyWalletPayment(ctx context.Context, exp Expectation) (Result, error) {
	if s.orders == nil {
		return Result{}, errors.ErrConfiguration.WithDetail("message", "no order provider configured")
	}

	order, err := s.orders.GetOrder(ctx, exp.ProviderRef)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(MethodWallet, "error").Inc()
		return Result{}, errors.Wrap(err, errors.ErrTransientInfra)
	}

	checks := orderedChecks{
		{"order_exists", order.ID != ""},
		{"amount_correct", order.Amount == exp.Amount},
		{"currency_correct", strings.EqualFold(order.Currency, exp.Currency)},
		{"status_completed", order.Status == "completed"},
		{"not_refunded", !order.Refunded},
		{"timestamp_valid", time.Since(order.CreatedAt) <= s.cfg.MaxPaymentAge},
	}

	return s.finish(exp.PaymentID, MethodWallet, checks, false), nil
}

// VerifyBankTransferPayment validates an uploaded transfer receipt. It never
// confirms on its own: the result always requires manual approval, the
// checks only filter out submissions not worth a reviewer's time.
func (s *Service) VerifyBankTransferPayment(ctx context.Context, paymentID string, proof Proof) (Result, error) {
	uploaded := proof.Filename != ""
	validFormat := false
	if uploaded {
		ext := strings.ToLower(filepath.Ext(proof.Filename))
		_, validFormat = allowedProofExtensions[ext]
	}

	duplicate := false
	if uploaded && s.dup != nil {
		fingerprint := Fingerprint(paymentID, proof.Filename, proof.DeclaredAmount, proof.UploadedAt)
		var err error
		duplicate, err = s.dup.CheckAndStore(ctx, fingerprint)
		if err != nil {
			metrics.VerificationsTotal.WithLabelValues(MethodBankTransfer, "error").Inc()
			return Result{}, errors.Wrap(err, errors.ErrTransientInfra)
		}
	}

	checks := orderedChecks{
		{"proof_uploaded", uploaded},
		{"proof_valid_format", validFormat},
		{"amount_sane", proof.DeclaredAmount >= 0},
		{"timestamp_recent", !proof.UploadedAt.IsZero() &&
			proof.UploadedAt.Sub(proof.PaymentCreatedAt) <= s.cfg.ProofMaxAge},
		{"duplicate_check", !duplicate},
	}

	return s.finish(paymentID, MethodBankTransfer, checks, true), nil
}

type orderedChecks []struct {
	name   string
	passed bool
}

func (s *Service) finish(paymentID, method string, checks orderedChecks, manualApproval bool) Result {
	result := Result{
		Method:                 method,
		PaymentID:              paymentID,
		Checks:                 make(map[string]bool, len(checks)),
		RequiresManualApproval: manualApproval,
		VerifiedAt:             time.Now(),
	}

	result.Success = true
	for _, check := range checks {
		result.Checks[check.name] = check.passed
		if !check.passed && result.Success {
			result.Success = false
			result.FailedCheck = check.name
		}
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
		s.logger.Warnw("payment verification failed",
			"payment_id", paymentID,
			"method", method,
			"failed_check", result.FailedCheck)
	} else {
		s.logger.Infow("payment verified",
			"payment_id", paymentID,
			"method", method,
			"manual_approval", manualApproval)
	}
	metrics.VerificationsTotal.WithLabelValues(method, outcome).Inc()

	return result
}
