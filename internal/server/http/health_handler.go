package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lhtl/internal/server/app"
)

type healthResponse struct {
	Status    app.HealthStatus      `json:"status"`
	Uptime    string                `json:"uptime"`
	Timestamp time.Time             `json:"timestamp"`
	Checks    []app.ComponentHealth `json:"checks"`
}

type healthHandler struct {
	checker *app.HealthChecker
	started time.Time
}

func (h *healthHandler) handle(c *gin.Context) {
	checks := []app.ComponentHealth{}
	if h.checker != nil {
		checks = h.checker.CheckAll(c.Request.Context())
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:    app.Overall(checks),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
