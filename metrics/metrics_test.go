package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New("portal_test")
	// a second instance must not panic on duplicate registration
	_ = New("portal_test")

	m.ChallengesIssued.Inc()
	m.VerificationOutcomes.WithLabelValues(OutcomeVerified).Inc()
	m.VerificationOutcomes.WithLabelValues(OutcomeRejected).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChallengesIssued))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationOutcomes.WithLabelValues(OutcomeRejected)))

	srv := NewMetricsServer(m, "127.0.0.1:0")
	rr := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "portal_test_challenges_issued_total 1"))
}
