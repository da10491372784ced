package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/api/audit"
	"warden/api/hub"
	"warden/api/model"
	"warden/api/probe"
	"warden/api/remedy"
	"warden/api/status"
)

type stubOrch struct {
	gate chan struct{} // when non-nil, ReplicaCount blocks until closed
}

func (s *stubOrch) ReplicaCount(ctx context.Context, svc *model.ServiceConfig) (int, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 1, nil
}

func (s *stubOrch) ScaleTo(ctx context.Context, svc *model.ServiceConfig, n int) error { return nil }
func (s *stubOrch) Restart(ctx context.Context, svc *model.ServiceConfig) error       { return nil }
func (s *stubOrch) WaitReady(ctx context.Context, svc *model.ServiceConfig, timeout time.Duration) error {
	return nil
}

type stubTunnel struct{}

func (stubTunnel) EnsureReachable(ctx context.Context, svc *model.ServiceConfig) (string, error) {
	return "forward " + svc.Name, nil
}

type stubProber struct{}

func (stubProber) Check(ctx context.Context, svc *model.ServiceConfig) probe.Result {
	return probe.Result{Healthy: true, Detail: map[string]string{"statusCode": "200"}}
}

// newTestHandler creates a handler with no DB, nomad, consul or S3. The
// engine runs against stub collaborators that always succeed.
func newTestHandler(t *testing.T, orch remedy.Orchestrator) *Handler {
	t.Helper()
	reg, err := model.ParseRegistry([]byte(`
cluster: test
services:
  - name: vault
    port: 8200
    stabilize: 5ms
  - name: consul
    port: 8500
    remediation: restart
    stabilize: 5ms
`))
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}

	st := status.NewStore(reg)
	aud := audit.NewMemoryStore()

	ws := hub.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ws.Run(ctx)

	eng := remedy.New(st, aud)
	eng.Orch = orch
	eng.Tunnel = stubTunnel{}
	eng.Prober = stubProber{}
	eng.Cooldown = time.Hour
	eng.AttemptTimeout = 2 * time.Second
	eng.WS = ws

	return New(st, status.NewIntake(st, 16), eng, aud, nil, nil, nil, nil, ws)
}

// testRouter mirrors the server's /api route layout.
func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/status", h.ClusterStatus)
		r.Get("/services", h.ListServices)
		r.Post("/report", h.Report)
		r.Get("/audit", h.ListAudit)
		r.Get("/audit/{attemptId}", h.GetAuditEntry)
		r.Route("/services/{id}", func(r chi.Router) {
			r.Use(ValidateServiceID)
			r.Get("/", h.GetService)
			r.Get("/history", h.GetServiceHistory)
			r.Post("/remediate", h.Remediate)
		})
	})
	return r
}

func waitForPhase(t *testing.T, h *Handler, name string, want remedy.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.engine.State(name).Phase == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s stuck in %s, want %s", name, h.engine.State(name).Phase, want)
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestReportEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, body := doJSON(t, router, "POST", "/api/report",
		`{"service":"vault","healthy":true,"observedAt":"2026-01-02T10:00:00Z"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %v", w.Code, body)
	}
	if body["status"] != "received" {
		t.Errorf("body = %v", body)
	}

	w, _ = doJSON(t, router, "POST", "/api/report", `{"service":"redis","healthy":true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown service: status = %d, want 404", w.Code)
	}

	w, _ = doJSON(t, router, "POST", "/api/report", `{"healthy":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing service: status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, router, "POST", "/api/report", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", w.Code)
	}
}

func TestReportEndpointSaturated(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	// Shrink the queue and do not run the applier, so the second report
	// finds it full.
	h.intake = status.NewIntake(h.store, 1)
	router := testRouter(h)

	w, _ := doJSON(t, router, "POST", "/api/report", `{"service":"vault","healthy":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first report: status = %d, want 202", w.Code)
	}
	w, _ = doJSON(t, router, "POST", "/api/report", `{"service":"vault","healthy":false}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("second report: status = %d, want 503", w.Code)
	}
}

func TestRemediateEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, body := doJSON(t, router, "POST", "/api/services/vault/remediate", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %v", w.Code, body)
	}
	attemptID, _ := body["attemptId"].(string)
	if attemptID == "" {
		t.Fatalf("no attemptId in %v", body)
	}
	waitForPhase(t, h, "vault", remedy.PhaseCooldown)

	// Plain retrigger during cooldown is rejected.
	w, body = doJSON(t, router, "POST", "/api/services/vault/remediate", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("during cooldown: status = %d, want 409", w.Code)
	}
	if body["reason"] != "cooldown" {
		t.Errorf("reason = %v, want cooldown", body["reason"])
	}

	// Forced retrigger proceeds.
	w, body = doJSON(t, router, "POST", "/api/services/vault/remediate?force=1", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("forced: status = %d, want 202: %v", w.Code, body)
	}
	waitForPhase(t, h, "vault", remedy.PhaseCooldown)

	// The completed attempt is visible in the audit log.
	w, _ = doJSON(t, router, "GET", "/api/audit/"+attemptID, "")
	if w.Code != http.StatusOK {
		t.Errorf("audit lookup: status = %d, want 200", w.Code)
	}
}

func TestRemediateConflictWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	h := newTestHandler(t, &stubOrch{gate: gate})
	router := testRouter(h)

	w, _ := doJSON(t, router, "POST", "/api/services/vault/remediate", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	w, body := doJSON(t, router, "POST", "/api/services/vault/remediate?force=1", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("while running: status = %d, want 409", w.Code)
	}
	if body["reason"] != "already_remediating" {
		t.Errorf("reason = %v, want already_remediating", body["reason"])
	}

	close(gate)
	waitForPhase(t, h, "vault", remedy.PhaseCooldown)
}

func TestRemediateValidation(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, _ := doJSON(t, router, "POST", "/api/services/redis/remediate", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown service: status = %d, want 404", w.Code)
	}

	w, _ = doJSON(t, router, "POST", "/api/services/-bad-/remediate", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", w.Code)
	}
}

func TestGetService(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, body := doJSON(t, router, "GET", "/api/services/vault", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	cfg, _ := body["config"].(map[string]interface{})
	if cfg["name"] != "vault" {
		t.Errorf("config.name = %v", cfg["name"])
	}
	rec, _ := body["record"].(map[string]interface{})
	if rec["known"] != false {
		t.Errorf("fresh record known = %v, want false", rec["known"])
	}
	remediation, _ := body["remediation"].(map[string]interface{})
	if remediation["phase"] != "idle" {
		t.Errorf("phase = %v, want idle", remediation["phase"])
	}

	w, _ = doJSON(t, router, "GET", "/api/services/redis", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown service: status = %d, want 404", w.Code)
	}
}

func TestClusterStatus(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	if _, err := h.store.Apply(model.Report{
		Service: "vault", Healthy: true, ObservedAt: time.Now(),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	w, body := doJSON(t, router, "GET", "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["cluster"] != "test" {
		t.Errorf("cluster = %v", body["cluster"])
	}
	if body["healthy"] != float64(1) || body["total"] != float64(2) {
		t.Errorf("healthy/total = %v/%v, want 1/2", body["healthy"], body["total"])
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded while consul is unknown", body["status"])
	}
	services, _ := body["services"].([]interface{})
	if len(services) != 2 {
		t.Errorf("services len = %d, want 2", len(services))
	}
}

func TestHistoryRequiresDB(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, _ := doJSON(t, router, "GET", "/api/services/vault/history", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a database", w.Code)
	}
}

func TestAuditEndpoints(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for i, svc := range []string{"vault", "consul", "vault"} {
		entry := &audit.Entry{
			AttemptID:  "a-" + string(rune('1'+i)),
			Service:    svc,
			Trigger:    audit.TriggerAutomatic,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Outcome:    audit.OutcomeSuccess,
			Steps:      []audit.Step{{Action: "restart", Result: "ok", OK: true, At: base}},
		}
		if err := h.audit.Append(context.Background(), entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/audit", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var entries []audit.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].AttemptID != "a-3" {
		t.Errorf("newest first: got %s", entries[0].AttemptID)
	}

	req = httptest.NewRequest("GET", "/api/audit?service=consul", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	entries = nil
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Service != "consul" {
		t.Errorf("filtered entries = %+v", entries)
	}

	wr, _ := doJSON(t, router, "GET", "/api/audit/a-2", "")
	if wr.Code != http.StatusOK {
		t.Errorf("get entry: status = %d, want 200", wr.Code)
	}
	wr, _ = doJSON(t, router, "GET", "/api/audit/missing", "")
	if wr.Code != http.StatusNotFound {
		t.Errorf("missing entry: status = %d, want 404", wr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubOrch{})
	router := testRouter(h)

	w, body := doJSON(t, router, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// No backends configured: nothing to degrade.
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["monitored"] != float64(2) {
		t.Errorf("monitored = %v, want 2", body["monitored"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusTeapot, "nope")

	if w.Code != http.StatusTeapot {
		t.Errorf("code = %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "nope" {
		t.Errorf("body = %v", body)
	}
}
