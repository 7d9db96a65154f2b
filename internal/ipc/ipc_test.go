package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rogers-f/clash-section-engine/internal/batch"
	"github.com/rogers-f/clash-section-engine/internal/bridge"
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/host"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/store"
)

func rec(name string, status domain.ClashStatus, z float64) domain.ClashNode {
	return domain.ClashNode{Record: &domain.ClashRecord{
		ID:          name,
		DisplayName: name,
		Status:      status,
		Center:      &domain.Point3{Z: z},
		Elements:    []domain.ElementRef{{ID: name + "-a"}, {ID: name + "-b"}},
	}}
}

func sampleTests() []domain.ClashTest {
	broken := rec("Broken", domain.StatusNew, 0)
	broken.Record.Center.Z = math.NaN()
	return []domain.ClashTest{
		{DisplayName: "MEP vs Structure", Root: domain.ClashGroup{Children: []domain.ClashNode{
			rec("Clash1", domain.StatusNew, 1),
			rec("Clash2", domain.StatusActive, 2),
			broken,
			rec("Clash3", domain.StatusReviewed, 3),
		}}},
		{DisplayName: "Closed", Root: domain.ClashGroup{Children: []domain.ClashNode{
			rec("Old", domain.StatusResolved, 0),
		}}},
	}
}

// newTestServer serves the full API over a real document and the reference
// host view, with the run worker running.
func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b := bridge.NewBridge(db, host.NewDocument(), sampleTests(), bridge.Options{
		ViewpointFolder:    "Clash Section Views",
		SelectionSetFolder: "Clash Section Sets",
		HighlightColor:     domain.Red,
	}, logging.Discard())
	h := &Handler{Bridge: b, Runs: newManager(t, b)}

	ts := httptest.NewServer(NewServer(h, "").httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, h
}

func newManager(t *testing.T, exec Executor) *RunManager {
	t.Helper()
	m := NewRunManager(exec, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func waitIdle(t *testing.T, m *RunManager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.ActiveID() != "" {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got HealthResponse
	decode(t, resp, &got)
	if got.Status != "ok" || !got.Document || got.Tests != 2 || got.ActiveRun != "" {
		t.Errorf("health = %+v", got)
	}
}

func TestListTests(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/tests", "")
	var got []bridge.TestInfo
	decode(t, resp, &got)
	if len(got) != 2 || got[0].Eligible != 4 || got[1].Eligible != 0 || got[1].Total != 1 {
		t.Errorf("tests = %+v", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	ts, h := newTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/api/v1/runs", `{"test":"MEP vs Structure"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var started StartRunResponse
	decode(t, resp, &started)
	if started.RunID == "" {
		t.Fatal("empty run_id")
	}
	waitIdle(t, h.Runs)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/runs/"+started.RunID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got RunResponse
	decode(t, resp, &got)
	if got.Active || got.Run.Status != domain.RunCompleted {
		t.Errorf("run = %+v, want completed and inactive", got)
	}
	if got.Run.Succeeded != 3 || len(got.Failures) != 1 || got.Failures[0].Name != "Broken" {
		t.Errorf("counts = %+v, failures = %+v", got.Run, got.Failures)
	}
	if !strings.HasPrefix(got.Message, "Created 3 section viewpoints, 1 failed.") {
		t.Errorf("message = %q", got.Message)
	}
	if got.Progress == nil || got.Progress.Index != 3 {
		t.Errorf("progress = %+v, want last update at index 3", got.Progress)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/folders/Clash%20Section%20Views/items?tree=viewpoints", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []domain.SavedItem
	decode(t, resp, &items)
	if len(items) != 3 || items[0].DisplayName != "Clash1" || items[2].DisplayName != "Clash3" {
		t.Errorf("items = %+v", items)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/runs", "")
	var runs []domain.RunRecord
	decode(t, resp, &runs)
	if len(runs) != 1 || runs[0].RunID != started.RunID {
		t.Errorf("runs = %+v", runs)
	}

	// Cancelling a finished run is a no-op.
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/runs/"+started.RunID+"/cancel", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("cancel finished run: expected 204, got %d", resp.StatusCode)
	}
}

func TestStartRun_Errors(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid body", "not json", http.StatusBadRequest},
		{"unknown test", `{"test":"Nope"}`, http.StatusNotFound},
		{"no eligible", `{"test":"Closed"}`, http.StatusUnprocessableEntity},
		{"not selected", `{}`, http.StatusUnprocessableEntity},
		{"bad status", `{"test":"Closed","statuses":["closed"]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/api/v1/runs", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestStartRun_StatusOverride(t *testing.T) {
	ts, h := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/runs", `{"test":"Closed","statuses":["resolved"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	waitIdle(t, h.Runs)
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/runs/missing"},
		{http.MethodPost, "/api/v1/runs/missing/cancel"},
		{http.MethodGet, "/api/v1/folders/Missing/items"},
		{http.MethodGet, "/api/v1/folders/Clash%20Section%20Views/items?tree=bogus"},
	} {
		resp := do(t, c.method, ts.URL+c.path, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodOptions, ts.URL+"/api/v1/runs", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

// blockingExec starts immediately and holds the run until released.
type blockingExec struct {
	release chan struct{}
}

func (b *blockingExec) Execute(ctx context.Context, req bridge.ExecuteRequest) (bridge.ExecuteResult, error) {
	req.OnStart(domain.RunRecord{RunID: req.RunID, Status: domain.RunRunning})
	req.Progress.Report(domain.ProgressUpdate{Index: 0, Total: 2, ItemName: "Clash1"})
	<-b.release
	return bridge.ExecuteResult{Summary: batch.Summary{Total: 2, Processed: 1, Succeeded: 1, Cancelled: req.Cancel.Cancelled()}}, nil
}

func TestRunManager_OneActiveRun(t *testing.T) {
	exec := &blockingExec{release: make(chan struct{})}
	m := newManager(t, exec)
	ctx := context.Background()

	id, err := m.Start(ctx, StartRequest{Test: "A"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(ctx, StartRequest{Test: "B"}); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("second Start err = %v, want ErrRunInProgress", err)
	}

	live, ok := m.Live(id)
	if !ok || !live.Active || live.Progress == nil || live.Progress.ItemName != "Clash1" {
		t.Errorf("live = %+v, %v", live, ok)
	}
	if m.Cancel("other") {
		t.Error("Cancel of an unknown run reported true")
	}
	if !m.Cancel(id) {
		t.Fatal("Cancel of the active run reported false")
	}
	close(exec.release)
	waitIdle(t, m)

	live, ok = m.Live(id)
	if !ok || live.Active || live.Summary == nil || !live.Summary.Cancelled {
		t.Errorf("after finish live = %+v, %v", live, ok)
	}
	if _, err := m.Start(ctx, StartRequest{Test: "C"}); err != nil {
		t.Errorf("Start after finish: %v", err)
	}
}

func TestRunManager_Stopped(t *testing.T) {
	m := NewRunManager(&blockingExec{release: make(chan struct{})}, logging.Discard())
	m.Stop()
	m.Stop()
	if _, err := m.Start(context.Background(), StartRequest{}); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("Start err = %v, want ErrManagerStopped", err)
	}
	if m.ActiveID() != "" {
		t.Error("stopped manager kept an active run")
	}
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrRunNotFound, http.StatusNotFound},
		{domain.ErrRunInProgress, http.StatusConflict},
		{domain.ErrNoDocument, http.StatusServiceUnavailable},
		{domain.WrapEngineError(domain.ErrInvalidFolder.Code, "folder", errors.New("x")), http.StatusUnprocessableEntity},
		{domain.ErrConfigInvalid, http.StatusBadRequest},
		{domain.ErrStoreQuery, http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("writeError(%v) = %d, want %d", tt.err, w.Code, tt.want)
		}
		var body APIError
		if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}
}
