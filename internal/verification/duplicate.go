package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"paypipe/internal/logger"
	"paypipe/pkg/errors"
)

const proofKeyPrefix = "proof:"

// RedisDuplicateChecker stores proof fingerprints with SETNX. The first
// submission wins the key; any later submission of the same fingerprint is
// a duplicate until the TTL lapses.
type RedisDuplicateChecker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisDuplicateChecker(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisDuplicateChecker {
	return &RedisDuplicateChecker{client: client, ttl: ttl, logger: log}
}

func (r *RedisDuplicateChecker) CheckAndStore(ctx context.Context, fingerprint string) (bool, error) {
	key := proofKeyPrefix + fingerprint

	stored, err := r.client.SetNX(ctx, key, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, errors.ErrTransientInfra.WithCause(
			fmt.Errorf("failed to check proof fingerprint: %w", err))
	}

	if !stored {
		r.logger.Warnw("duplicate proof submission detected", "fingerprint", fingerprint)
		return true, nil
	}
	return false, nil
}

// MemoryDuplicateChecker is the in-process fallback used when Redis is not
// configured. Entries never expire; it only holds for one process lifetime.
type MemoryDuplicateChecker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDuplicateChecker() *MemoryDuplicateChecker {
	return &MemoryDuplicateChecker{seen: make(map[string]struct{})}
}

func (m *MemoryDuplicateChecker) CheckAndStore(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[fingerprint]; ok {
		return true, nil
	}
	m.seen[fingerprint] = struct{}{}
	return false, nil
}
