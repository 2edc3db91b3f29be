package metrics

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string          `json:"status"`
	Timestamp     string          `json:"timestamp"`
	Components    map[string]bool `json:"components"`
	UptimeSeconds int64           `json:"uptime_seconds"`
}

// NewHealthHandler 构建健康检查端点。
// components由调用方提供，任一组件不健康时整体状态为degraded。
func NewHealthHandler(start time.Time, components func() map[string]bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := components()
		status := "healthy"
		for _, ok := range c {
			if !ok {
				status = "degraded"
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:        status,
			Timestamp:     time.Now().Format(time.RFC3339),
			Components:    c,
			UptimeSeconds: int64(time.Since(start).Seconds()),
		})
	})
}
