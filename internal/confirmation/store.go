package confirmation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paypipe/internal/audit"
	"paypipe/internal/config"
	"paypipe/internal/logger"
	"paypipe/internal/notification"
	"paypipe/pkg/errors"
	"paypipe/pkg/metrics"
	"paypipe/pkg/retry"
)

// Deliverer sends one rendered notification synchronously. The store owns
// the retry budget for confirmation delivery, so it needs the real outcome
// of each send rather than a queue acknowledgement.
type Deliverer interface {
	Deliver(ctx context.Context, msg notification.Message) error
}

// Store tracks confirmation jobs from creation to a terminal status. A
// single worker drains the queue; a sweeper expires stale jobs, requeues
// due retries and purges old terminal jobs.
type Store struct {
	cfg       config.ConfirmationConfig
	deliverer Deliverer
	logger    logger.Logger
	audit     audit.Recorder

	mu    sync.Mutex
	jobs  map[string]*Job
	queue []*Job
	wake  chan struct{}
}

func NewStore(cfg config.ConfirmationConfig, deliverer Deliverer, recorder audit.Recorder, log logger.Logger) *Store {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Store{
		cfg:       cfg,
		deliverer: deliverer,
		logger:    log,
		audit:     recorder,
		jobs:      make(map[string]*Job),
		wake:      make(chan struct{}, 1),
	}
}

// Add registers a confirmation job for the payment snapshot and enqueues it
// for its first delivery attempt. It returns the generated job id.
func (s *Store) Add(snapshot Snapshot) (string, error) {
	if snapshot.PaymentID == "" {
		return "", errors.ErrValidation.WithDetail("message", "payment id is required")
	}
	if snapshot.Email == "" {
		return "", errors.ErrValidation.WithDetail("message", "customer email is required")
	}
	if snapshot.Name == "" {
		snapshot.Name = "customer"
	}

	id := newJobID(snapshot.PaymentID, time.Now())

	s.mu.Lock()
	if _, exists := s.jobs[id]; exists {
		s.mu.Unlock()
		return "", errors.ErrConflict.WithDetail("message",
			fmt.Sprintf("confirmation job %s already exists", id))
	}
	job := &Job{
		ID:        id,
		Snapshot:  snapshot,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	s.jobs[id] = job
	s.pushBack(job)
	s.mu.Unlock()
	s.signal()

	s.logger.Infow("confirmation job created",
		"job_id", id,
		"payment_id", snapshot.PaymentID,
		"method", snapshot.Method)
	return id, nil
}

// Get returns a copy of the job. Cancelled and purged jobs are not found.
func (s *Store) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, errors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("confirmation job %s not found", id))
	}
	return *job, nil
}

// ForceConfirm resets the attempt counter of a pending job and moves it to
// the front of the queue so the next worker pass picks it up first.
func (s *Store) ForceConfirm(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("confirmation job %s not found", id))
	}
	if job.Status != StatusPending {
		s.mu.Unlock()
		return errors.ErrConflict.WithDetail("message",
			fmt.Sprintf("confirmation job %s is %s, only pending jobs can be forced", id, job.Status))
	}
	job.Attempts = 0
	job.nextRetryAt = time.Time{}
	if job.queued {
		// already waiting: pull it out of its slot so it lands at the front
		for i, queued := range s.queue {
			if queued == job {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	}
	job.queued = true
	s.queue = append([]*Job{job}, s.queue...)
	metrics.ConfirmationQueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()
	s.signal()

	s.logger.Infow("confirmation job forced", "job_id", id)
	return nil
}

// Cancel marks a pending job cancelled and removes it from tracking. A
// retry already scheduled may still pop the job, but the worker drops
// anything that is no longer pending, so at most that one pop is wasted.
func (s *Store) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("confirmation job %s not found", id))
	}
	if job.Status != StatusPending {
		s.mu.Unlock()
		return errors.ErrConflict.WithDetail("message",
			fmt.Sprintf("confirmation job %s is %s, only pending jobs can be cancelled", id, job.Status))
	}
	job.Status = StatusCancelled
	delete(s.jobs, id)
	paymentID := job.Snapshot.PaymentID
	s.mu.Unlock()

	metrics.ConfirmationJobsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	s.logger.Infow("confirmation job cancelled", "job_id", id, "payment_id", paymentID)
	s.record(ctx, audit.KindJobCancelled, id, paymentID, nil)
	return nil
}

// GetStats aggregates over all tracked jobs, confirmed ones included until
// the purge removes them.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Total: len(s.jobs), QueueDepth: len(s.queue)}
	for _, job := range s.jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusConfirmed:
			stats.Confirmed++
		case StatusFailed:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Confirmed) / float64(stats.Total) * 100
	}
	return stats
}

// Run is the delivery worker. It blocks on the queue until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Infow("confirmation worker started",
		"max_attempts", s.cfg.MaxAttempts,
		"retry_base_delay", s.cfg.RetryBaseDelay)

	for {
		job, err := s.pop(ctx)
		if err != nil {
			s.logger.Infow("confirmation worker stopped")
			return err
		}
		s.process(ctx, job)
	}
}

// RunSweep periodically expires pending jobs past the confirmation timeout,
// requeues retries whose delay has elapsed and purges old terminal jobs.
func (s *Store) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx, time.Now())
		}
	}
}

func (s *Store) pop(ctx context.Context) (*Job, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			job := s.queue[0]
			s.queue = s.queue[1:]
			job.queued = false
			metrics.ConfirmationQueueDepth.Set(float64(len(s.queue)))
			s.mu.Unlock()
			return job, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *Store) process(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Panic recovered during confirmation delivery",
				"job_id", job.ID,
				"error", errors.RecoverPanic(r))
		}
	}()

	s.mu.Lock()
	if job.Status != StatusPending {
		// cancelled or expired between scheduling and pop
		s.mu.Unlock()
		return
	}
	if _, tracked := s.jobs[job.ID]; !tracked {
		s.mu.Unlock()
		return
	}
	job.Attempts++
	now := time.Now()
	job.LastAttemptAt = &now
	attempts := job.Attempts
	snapshot := job.Snapshot
	s.mu.Unlock()

	info := notification.PaymentInfo{
		Email:     snapshot.Email,
		Name:      snapshot.Name,
		PaymentID: snapshot.PaymentID,
		Amount:    snapshot.Amount,
		Currency:  snapshot.Currency,
		Serial:    snapshot.Serial,
		Method:    snapshot.Method,
	}

	start := time.Now()
	customerErr := s.deliverer.Deliver(ctx, notification.NewPaymentConfirmation(info, notification.RecipientCustomer))
	adminErr := s.deliverer.Deliver(ctx, notification.NewPaymentConfirmation(info, notification.RecipientAdmin))

	if customerErr == nil && adminErr == nil {
		metrics.ObserveConfirmationDelivery(time.Since(start), "success")
		metrics.ConfirmationAttemptsTotal.WithLabelValues("success").Inc()
		s.markConfirmed(ctx, job, attempts)
		return
	}

	metrics.ObserveConfirmationDelivery(time.Since(start), "failure")
	metrics.ConfirmationAttemptsTotal.WithLabelValues("failure").Inc()
	s.logger.Warnw("confirmation delivery attempt failed",
		"job_id", job.ID,
		"payment_id", snapshot.PaymentID,
		"attempts", attempts,
		"customer_error", customerErr,
		"admin_error", adminErr)

	if attempts >= s.cfg.MaxAttempts {
		s.markFailed(ctx, job, customerErr, adminErr)
		return
	}
	s.scheduleRetry(job, attempts)
}

func (s *Store) markConfirmed(ctx context.Context, job *Job, attempts int) {
	s.mu.Lock()
	if job.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	job.Status = StatusConfirmed
	now := time.Now()
	job.ConfirmedAt = &now
	paymentID := job.Snapshot.PaymentID
	s.mu.Unlock()

	metrics.ConfirmationJobsTotal.WithLabelValues(string(StatusConfirmed)).Inc()
	s.logger.Infow("confirmation job confirmed",
		"job_id", job.ID,
		"payment_id", paymentID,
		"attempts", attempts)
	s.record(ctx, audit.KindJobConfirmed, job.ID, paymentID, map[string]interface{}{
		"attempts":       attempts,
		"customer_email": "sent",
		"admin_email":    "sent",
	})
}

func (s *Store) markFailed(ctx context.Context, job *Job, customerErr, adminErr error) {
	s.mu.Lock()
	if job.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	job.Status = StatusFailed
	paymentID := job.Snapshot.PaymentID
	attempts := job.Attempts
	s.mu.Unlock()

	metrics.ConfirmationJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
	s.logger.Errorw("confirmation job failed, attempt budget exhausted",
		"job_id", job.ID,
		"payment_id", paymentID,
		"attempts", attempts,
		"customer_error", customerErr,
		"admin_error", adminErr)

	details := map[string]interface{}{"attempts": attempts}
	if customerErr != nil {
		details["customer_error"] = customerErr.Error()
	}
	if adminErr != nil {
		details["admin_error"] = adminErr.Error()
	}
	s.record(ctx, audit.KindJobFailed, job.ID, paymentID, details)
}

func (s *Store) scheduleRetry(job *Job, attempts int) {
	delay := retry.CalculateBackoffDuration(attempts, s.cfg.RetryBaseDelay, 2.0, 0)

	s.mu.Lock()
	job.nextRetryAt = time.Now().Add(delay)
	s.mu.Unlock()

	s.logger.Infow("confirmation retry scheduled",
		"job_id", job.ID,
		"attempts", attempts,
		"delay", delay)

	id := job.ID
	time.AfterFunc(delay, func() {
		s.requeue(id)
	})
}

// requeue puts a pending job back on the queue. No-op if the job reached a
// terminal status or was already requeued by the sweeper.
func (s *Store) requeue(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != StatusPending || job.queued {
		s.mu.Unlock()
		return
	}
	job.nextRetryAt = time.Time{}
	s.pushBack(job)
	s.mu.Unlock()
	s.signal()
}

func (s *Store) sweep(ctx context.Context, now time.Time) {
	type expiredJob struct {
		id        string
		paymentID string
		attempts  int
	}
	var expired []expiredJob
	var requeued []string

	s.mu.Lock()
	for id, job := range s.jobs {
		switch {
		case job.Status == StatusPending && now.Sub(job.CreatedAt) >= s.cfg.Timeout:
			job.Status = StatusExpired
			delete(s.jobs, id)
			expired = append(expired, expiredJob{id: id, paymentID: job.Snapshot.PaymentID, attempts: job.Attempts})
		case job.Status == StatusPending && !job.queued && !job.nextRetryAt.IsZero() && !now.Before(job.nextRetryAt):
			job.nextRetryAt = time.Time{}
			s.pushBack(job)
			requeued = append(requeued, id)
		case job.Status != StatusPending && now.Sub(job.CreatedAt) >= s.cfg.PurgeAfter:
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	if len(requeued) > 0 {
		s.signal()
	}
	for _, e := range expired {
		metrics.ConfirmationJobsTotal.WithLabelValues(string(StatusExpired)).Inc()
		s.logger.Warnw("confirmation job expired",
			"job_id", e.id,
			"payment_id", e.paymentID,
			"attempts", e.attempts,
			"timeout", s.cfg.Timeout)
		s.record(ctx, audit.KindJobExpired, e.id, e.paymentID, map[string]interface{}{
			"attempts": e.attempts,
		})
	}
}

// pushBack appends under s.mu; callers hold the lock.
func (s *Store) pushBack(job *Job) {
	job.queued = true
	s.queue = append(s.queue, job)
	metrics.ConfirmationQueueDepth.Set(float64(len(s.queue)))
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) record(ctx context.Context, kind, jobID, paymentID string, details map[string]interface{}) {
	rec := audit.NewRecord(kind)
	rec.JobID = jobID
	rec.PaymentID = paymentID
	rec.Details = details
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warnw("failed to record audit entry", "kind", kind, "job_id", jobID, "error", err)
	}
}

func newJobID(paymentID string, at time.Time) string {
	prefix := paymentID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("conf_%d_%s", at.Unix(), prefix)
}
