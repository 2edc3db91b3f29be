package metrics_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalet-go/metrics"
)

func TestHealthHandler(t *testing.T) {
	components := map[string]bool{"engine": true, "telemetry": true}
	handler := metrics.NewHealthHandler(time.Now().Add(-3*time.Second), func() map[string]bool {
		return components
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, metrics.HealthPattern, nil))
	assert.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Status        string          `json:"status"`
		Components    map[string]bool `json:"components"`
		UptimeSeconds int64           `json:"uptime_seconds"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, components, resp.Components)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(3))

	components["telemetry"] = false
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, metrics.HealthPattern, nil))
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}
