//go:build unit

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkmail/internal/dispatch"
)

func TestObserveOutcomes(t *testing.T) {
	m := NewMetrics()

	m.ObserveOutcomes([]dispatch.Outcome{
		{Recipient: "a@x.com", Status: dispatch.StatusDelivered},
		{Recipient: "b@x.com", Status: dispatch.StatusRejected},
		{Recipient: "c@x.com", Status: dispatch.StatusDelivered},
		{Recipient: "d@x.com", Status: dispatch.StatusNotAttempted},
	})
	m.ObserveRun("aborted")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecipientsCounter.WithLabelValues("delivered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecipientsCounter.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecipientsCounter.WithLabelValues("not_attempted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchRunsCounter.WithLabelValues("aborted")))
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OpenSessionsGauge))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveRun("completed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `bulkmail_dispatch_runs_total{result="completed"} 1`)
	assert.Contains(t, string(body), "bulkmail_host_memory_used_percent")
}
