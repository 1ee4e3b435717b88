package statusserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/depthcap/pkg/adapters/logger"
	"github.com/user/depthcap/pkg/controller"
	"github.com/user/depthcap/pkg/pipeline"
)

type fakeTarget struct {
	stats   controller.Stats
	stopped int
}

func (f *fakeTarget) Stats() controller.Stats {
	return f.stats
}

func (f *fakeTarget) Stop() {
	f.stopped++
	f.stats.State = controller.StateDraining
}

func newTestServer(target Target) *Server {
	gin.SetMode(gin.TestMode)
	return New("127.0.0.1:0", "session-1", target, logger.NewNoop())
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(&fakeTarget{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
}

func TestServer_Status(t *testing.T) {
	target := &fakeTarget{stats: controller.Stats{
		State:     controller.StateRunning,
		StartedAt: time.Now().Add(-time.Minute),
		Streams: map[pipeline.StreamID]controller.StreamStats{
			pipeline.StreamColor: {Frames: 60, Timeouts: 2, Absent: 1},
		},
		SetsEmitted: 60,
		SetsPartial: 1,
		Persisted:   58,
		Files:       290,
		LastIndex:   57,
	}}
	srv := newTestServer(target)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Session != "session-1" || resp.State != "running" {
		t.Errorf("unexpected session/state %s/%s", resp.Session, resp.State)
	}
	if resp.Persisted != 58 || resp.LastIndex != 57 || resp.Files != 290 {
		t.Errorf("unexpected counters %+v", resp)
	}
	if resp.Streams[pipeline.StreamColor].Frames != 60 {
		t.Errorf("unexpected stream stats %+v", resp.Streams)
	}
	if resp.UptimeSeconds < 59 || resp.StartedAt == nil {
		t.Errorf("expected about a minute of uptime, got %v", resp.UptimeSeconds)
	}
}

func TestServer_Stop(t *testing.T) {
	target := &fakeTarget{stats: controller.Stats{State: controller.StateRunning}}
	srv := newTestServer(target)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/stop", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if target.stopped != 1 {
		t.Errorf("expected Stop to be called once, got %d", target.stopped)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second stop, got %d", w.Code)
	}
	if target.stopped != 1 {
		t.Errorf("expected no second Stop call, got %d", target.stopped)
	}
}

func TestServer_StopRequiresPost(t *testing.T) {
	srv := newTestServer(&fakeTarget{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stop", nil))
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected GET /api/stop to be rejected, got %d", w.Code)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := newTestServer(&fakeTarget{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
