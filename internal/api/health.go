// Package api provides HTTP handlers for labweave.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NamedCheck is one dependency probed by the readiness endpoint.
type NamedCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	checks    []NamedCheck
	clients   func() int
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. clients may be nil.
func NewHealthHandler(checks []NamedCheck, clients func() int, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		clients:   clients,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health. It never touches backing stores.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	if h.clients != nil {
		resp.WSClients = h.clients()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready: every configured store must answer a ping.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := make(map[string]string, len(h.checks))
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	for _, chk := range h.checks {
		if err := chk.Pinger.Ping(ctx); err != nil {
			h.log.WithError(err).WithField("check", chk.Name).Error("readiness check failed")
			checks[chk.Name] = "error"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable

			continue
		}

		checks[chk.Name] = "ok"
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}
