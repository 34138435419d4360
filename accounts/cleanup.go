package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/metrics"
)

// DefaultCodeTTL is how long an emailed verification code stays valid.
const DefaultCodeTTL = 24 * time.Hour

// CodeCleaner purges expired email verification codes.
type CodeCleaner struct {
	store   interfaces.AccountStore
	ttl     time.Duration
	now     interfaces.Clock
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewCodeCleaner creates a cleaner. A nil metrics disables counting.
func NewCodeCleaner(store interfaces.AccountStore, ttl time.Duration, now interfaces.Clock, m *metrics.Metrics, log *slog.Logger) *CodeCleaner {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &CodeCleaner{store: store, ttl: ttl, now: now, metrics: m, log: log}
}

// Purge deletes codes older than the TTL and returns how many were removed.
func (c *CodeCleaner) Purge(ctx context.Context) (int, error) {
	n, err := c.store.DeleteEmailVerificationsBefore(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge verification codes: %w", err)
	}
	if c.metrics != nil {
		c.metrics.CodesPurged.Add(float64(n))
	}
	if n > 0 {
		c.log.Info("Purged expired verification codes", slog.Int("count", n))
	}
	return n, nil
}

// Schedule registers Purge on the cron schedule spec, e.g. "@every 1h".
func (c *CodeCleaner) Schedule(scheduler *cron.Cron, spec string) error {
	_, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := c.Purge(ctx); err != nil {
			c.log.Error("Scheduled verification code cleanup failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule verification code cleanup: %w", err)
	}
	return nil
}
