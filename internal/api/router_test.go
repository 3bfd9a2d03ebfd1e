package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labweave/labweave/internal/api"
	"github.com/labweave/labweave/internal/blob"
	"github.com/labweave/labweave/internal/memstore"
	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/models"
	"github.com/labweave/labweave/internal/service"
	"github.com/labweave/labweave/internal/ws"
)

// sha256("ABC")
const abcHash = "b5d4045c3f466fa91fe2cc6abe79232a1a57cdf104f7a26e716e0a1e2789df78"

type stack struct {
	router http.Handler
	worker *service.ProjectionWorker
}

// newStack wires the in-memory ledger, graph and projector behind the real router.
func newStack(t *testing.T) *stack {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := testLogger()

	fsb, err := blob.NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}

	ledgerStore := memstore.NewLedgerStore()
	graph := memstore.NewGraphStore()

	worker := service.NewProjectionWorker(service.NewProjector(graph, log), log, service.WorkerConfig{Shards: 2})
	go worker.Run(ctx)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	ledger := service.NewLedger(ledgerStore, blob.New(fsb, log), service.Publishers{worker, hub}, log, service.LedgerConfig{})

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:            log,
		Hub:            hub,
		Documents:      ledger,
		Graph:          service.NewGraphService(graph, log),
		Resync:         service.NewResyncer(ledgerStore, worker, log),
		Checks:         []api.NamedCheck{{Name: "ledger", Pinger: ledgerStore}, {Name: "graph", Pinger: graph}},
		CORSOrigins:    []string{"http://localhost:3000"},
		Version:        "test",
		ServiceName:    "labweave-test",
		MaxUploadBytes: 1 << 20,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	return &stack{router: router, worker: worker}
}

func (s *stack) upload(t *testing.T, path string, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field: %v", err)
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating file part: %v", err)
	}

	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("writing file part: %v", err)
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.UserIDHeader, "alice")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON (%d): %v: %s", w.Code, err, w.Body.String())
	}

	return v
}

func TestRouter_ProtocolAOverHTTP(t *testing.T) {
	s := newStack(t)

	w := s.upload(t, "/api/v1/documents", map[string]string{"title": "Protocol A", "project_id": "p1"}, "protocol_v1.txt", "ABC")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	created := decode[struct {
		Document models.Document `json:"document"`
		Version  models.Version  `json:"version"`
	}](t, w)

	id := created.Document.ID
	if created.Version.ContentHash != abcHash || created.Document.CreatedBy != "alice" {
		t.Fatalf("created = %+v", created)
	}

	if w := s.upload(t, "/api/v1/documents/"+id+"/versions", map[string]string{"comment": "v2"}, "protocol_v2.txt", "ABCD"); w.Code != http.StatusCreated {
		t.Fatalf("add version: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(s.router, http.MethodPost, "/api/v1/documents/"+id+"/versions/1/restore", `{"comment":"back to v1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("restore: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	restored := decode[models.Version](t, w)
	if restored.Number != 3 || restored.ContentHash != abcHash || restored.RestoredFrom == nil || *restored.RestoredFrom != 1 {
		t.Errorf("restored = %+v", restored)
	}

	w = doRequest(s.router, http.MethodGet, "/api/v1/documents/"+id+"/content", "")
	if w.Code != http.StatusOK || w.Body.String() != "ABC" {
		t.Fatalf("content: got %d %q", w.Code, w.Body.String())
	}

	if got := w.Header().Get(api.ContentHashHeader); got != abcHash {
		t.Errorf("content hash header = %q", got)
	}

	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	versions := decode[struct {
		Versions []models.Version `json:"versions"`
	}](t, doRequest(s.router, http.MethodGet, "/api/v1/documents/"+id+"/versions", ""))

	if len(versions.Versions) != 3 {
		t.Fatalf("versions = %d, want 3", len(versions.Versions))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.worker.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	w = doRequest(s.router, http.MethodGet, "/api/v1/graph/path/"+models.VersionNodeID(id, 3)+"/user:alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("path: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if p := decode[models.Path](t, w); p.Length != 2 {
		t.Errorf("path length = %d, want 2", p.Length)
	}

	w = doRequest(s.router, http.MethodGet, "/api/v1/graph/search?q=protocol&type=Document&prop.project_id=p1", "")
	res := decode[struct {
		Total int `json:"total"`
	}](t, w)

	if res.Total != 1 {
		t.Errorf("search total = %d, want 1", res.Total)
	}
}

func TestRouter_HealthAndUnknownDocument(t *testing.T) {
	s := newStack(t)

	if w := doRequest(s.router, http.MethodGet, "/api/v1/ready", ""); w.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", w.Code)
	}

	if w := doRequest(s.router, http.MethodGet, "/api/v1/documents/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown document: expected 404, got %d", w.Code)
	}

	if w := doRequest(s.router, http.MethodPost, "/api/v1/documents/nope/versions/1/restore", ""); w.Code != http.StatusNotFound {
		t.Errorf("restore unknown: expected 404, got %d", w.Code)
	}
}
