package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	cron "github.com/robfig/cron/v3"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/metrics"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeCleaner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := metrics.New("test")

	for email, age := range map[string]time.Duration{
		"old@example.com":   48 * time.Hour,
		"fresh@example.com": time.Hour,
	} {
		require.NoError(t, s.SaveEmailVerification(ctx, &interfaces.EmailVerification{
			Email:     email,
			Kind:      interfaces.VerifyEmail,
			Code:      "ABCDEFG",
			CreatedAt: testNow.Add(-age),
		}))
	}

	c := NewCodeCleaner(s, 0, func() time.Time { return testNow }, m, discardLogger())
	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CodesPurged))

	_, err = s.GetEmailVerification(ctx, "old@example.com", interfaces.VerifyEmail)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = s.GetEmailVerification(ctx, "fresh@example.com", interfaces.VerifyEmail)
	assert.NoError(t, err)

	scheduler := cron.New()
	require.NoError(t, c.Schedule(scheduler, "@every 1h"))
	assert.Len(t, scheduler.Entries(), 1)
	assert.Error(t, c.Schedule(scheduler, "not a schedule"))
}
