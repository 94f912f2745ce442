package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue returns the value of the named counter whose labels match,
// or -1 if it was not gathered.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestCollector_RecordLogin(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(ResultSuccess)
	c.RecordLogin(ResultRejected)
	c.RecordLogin(ResultRejected)

	assert.Equal(t, float64(1), counterValue(t, reg, "ccs_auth_login_total", map[string]string{"result": ResultSuccess}))
	assert.Equal(t, float64(2), counterValue(t, reg, "ccs_auth_login_total", map[string]string{"result": ResultRejected}))
}

func TestCollector_RecordReset(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResetRequest()
	c.RecordResetRequest()
	c.RecordResetConfirm(ResultInvalid)

	assert.Equal(t, float64(2), counterValue(t, reg, "ccs_auth_reset_request_total", nil))
	assert.Equal(t, float64(1), counterValue(t, reg, "ccs_auth_reset_confirm_total", map[string]string{"result": ResultInvalid}))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.StatusOK, 20*time.Millisecond)
	c.RecordHTTPRequest(http.StatusUnauthorized, 5*time.Millisecond)

	assert.Equal(t, float64(1), counterValue(t, reg, "ccs_http_requests_total", map[string]string{"status": "200"}))
	assert.Equal(t, float64(1), counterValue(t, reg, "ccs_http_requests_total", map[string]string{"status": "401"}))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "ccs_http_request_duration_seconds" {
			assert.Equal(t, uint64(2), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordLogin(ResultSuccess)
		c.RecordResetRequest()
		c.RecordResetConfirm(ResultSuccess)
		c.RecordHTTPRequest(http.StatusOK, time.Millisecond)
	})
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(ResultSuccess)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ccs_auth_login_total{result="success"} 1`)
}
