package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()

	m.AdmissionOutcomes.WithLabelValues("ballot_admit").Inc()
	m.AdmissionOutcomes.WithLabelValues("ballot_admit").Inc()
	m.OTPChallenges.WithLabelValues("issue", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdmissionOutcomes.WithLabelValues("ballot_admit")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voting_admission_outcomes_total{state="ballot_admit"} 2`)
	assert.Contains(t, string(body), `voting_otp_challenges_total{op="issue",result="ok"} 1`)
}
