package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/labweave/labweave/internal/api"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(nil, func() int { return 2 }, testLogger(), "test-v1")

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}

	if body["version"] != "test-v1" {
		t.Errorf("expected version 'test-v1', got %v", body["version"])
	}

	if body["ws_clients"] != float64(2) {
		t.Errorf("expected ws_clients 2, got %v", body["ws_clients"])
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks []api.NamedCheck
		want   int
		failed string
	}{
		{name: "all ok", checks: []api.NamedCheck{{Name: "ledger", Pinger: ok}, {Name: "graph", Pinger: ok}}, want: http.StatusOK},
		{name: "graph down", checks: []api.NamedCheck{{Name: "ledger", Pinger: ok}, {Name: "graph", Pinger: down}}, want: http.StatusServiceUnavailable, failed: "graph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := api.NewHealthHandler(tt.checks, nil, testLogger(), "v")

			r := gin.New()
			r.GET("/ready", h.Readiness)

			w := doRequest(r, http.MethodGet, "/ready", "")
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}

			var body struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if tt.failed != "" && body.Checks[tt.failed] != "error" {
				t.Errorf("checks = %v", body.Checks)
			}
		})
	}
}
