package receipt

import (
	"context"
	"fmt"
	"time"

	"paypipe/internal/logger"
	"paypipe/pkg/errors"
)

// Service generates and serves receipts for confirmed payments.
type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// Generate creates and persists a receipt for a confirmed payment.
func (s *Service) Generate(ctx context.Context, details PaymentDetails) (Receipt, error) {
	if details.PaymentID == "" {
		return Receipt{}, errors.ErrValidation.WithDetail("message", "payment id is required")
	}
	if details.Email == "" {
		return Receipt{}, errors.ErrValidation.WithDetail("message", "customer email is required")
	}

	receipt := Receipt{
		ID:          fmt.Sprintf("receipt_%s_%d", details.PaymentID, time.Now().Unix()),
		PaymentID:   details.PaymentID,
		Email:       details.Email,
		Name:        details.Name,
		Amount:      details.Amount,
		Currency:    details.Currency,
		Method:      details.Method,
		Serial:      details.Serial,
		Status:      "issued",
		GeneratedAt: time.Now(),
	}

	if err := s.repo.Insert(ctx, receipt); err != nil {
		s.logger.Errorw("failed to persist receipt",
			"receipt_id", receipt.ID,
			"payment_id", details.PaymentID,
			"error", err)
		return Receipt{}, err
	}

	s.logger.Infow("receipt generated",
		"receipt_id", receipt.ID,
		"payment_id", details.PaymentID)
	return receipt, nil
}

func (s *Service) Get(ctx context.Context, id string) (Receipt, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPayment(ctx context.Context, paymentID string) ([]Receipt, error) {
	return s.repo.ListByPayment(ctx, paymentID)
}
