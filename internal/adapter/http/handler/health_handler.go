package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"subscription-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// healthTimeout bounds the whole dependency probe.
const healthTimeout = 3 * time.Second

type depStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthCheck handles GET /health. Dependencies are pinged concurrently and
// any failure reports the service as degraded with 503.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		statuses := make([]depStatus, len(checkers))
		var wg sync.WaitGroup
		for i, checker := range checkers {
			wg.Add(1)
			go func(i int, checker ports.HealthChecker) {
				defer wg.Done()
				start := time.Now()
				err := checker.Ping(ctx)
				st := depStatus{Status: "healthy", Latency: time.Since(start).String()}
				if err != nil {
					st.Status = "unhealthy"
					st.Error = err.Error()
				}
				statuses[i] = st
			}(i, checker)
		}
		wg.Wait()

		status, code := "healthy", http.StatusOK
		deps := make(map[string]depStatus, len(checkers))
		for i, checker := range checkers {
			deps[checker.Name()] = statuses[i]
			if statuses[i].Status != "healthy" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
