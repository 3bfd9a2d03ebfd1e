package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labweave/labweave/internal/api"
	"github.com/labweave/labweave/internal/models"
)

func TestAdminResync(t *testing.T) {
	t.Parallel()

	var one string

	rs := &mockResync{
		resyncFn: func(_ context.Context, id string) error {
			if id == "gone" {
				return models.ErrDocumentNotFound
			}

			one = id

			return nil
		},
		resyncAllFn: func(context.Context) (int, error) { return 4, nil },
	}

	r := newTestRouter()
	h := api.NewAdminHandler(rs, &mockLedger{}, testLogger())
	r.POST("/admin/resync", h.Resync)

	w := doRequest(r, http.MethodPost, "/admin/resync", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["resynced"] != 4 {
		t.Errorf("resynced = %d, want 4", body["resynced"])
	}

	if w := doRequest(r, http.MethodPost, "/admin/resync", `{"document_id":"d7"}`); w.Code != http.StatusAccepted || one != "d7" {
		t.Errorf("single resync: got %d, id %q", w.Code, one)
	}

	if w := doRequest(r, http.MethodPost, "/admin/resync", `{"document_id":"gone"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown document: expected 404, got %d", w.Code)
	}
}

func TestAdminCollectGarbage(t *testing.T) {
	t.Parallel()

	ledger := &mockLedger{
		gcFn: func(_ context.Context, dryRun bool) (*models.GCResult, error) {
			return &models.GCResult{Scanned: 3, Orphaned: 1, DryRun: dryRun}, nil
		},
	}

	r := newTestRouter()
	h := api.NewAdminHandler(&mockResync{}, ledger, testLogger())
	r.POST("/admin/gc", h.CollectGarbage)

	w := doRequest(r, http.MethodPost, "/admin/gc?dry_run=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res models.GCResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !res.DryRun || res.Orphaned != 1 {
		t.Errorf("result = %+v", res)
	}

	if w := doRequest(r, http.MethodPost, "/admin/gc?dry_run=maybe", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad dry_run: expected 400, got %d", w.Code)
	}
}
