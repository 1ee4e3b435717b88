// Package statusserver exposes a running capture session over HTTP.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/depthcap/pkg/controller"
	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// Target is the capture session the server reports on.
type Target interface {
	Stats() controller.Stats
	Stop()
}

// Server serves health, status and stop endpoints.
type Server struct {
	addr      string
	sessionID string
	target    Target
	logger    ports.Logger
	engine    *gin.Engine
	http      *http.Server
}

// New creates a server for target. The session ID is reported in every status response.
// Callers choose the gin mode with gin.SetMode before calling New.
func New(addr, sessionID string, target Target, logger ports.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:      addr,
		sessionID: sessionID,
		target:    target,
		logger:    logger.WithComponent("status"),
		engine:    engine,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)
	s.engine.POST("/api/stop", s.handleStop)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}
	return s.Shutdown()
}

// Shutdown stops the server, waiting up to 5 seconds for open requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger.Debug("Status server stopped")
	return nil
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Session         string                          `json:"session"`
	State           string                          `json:"state"`
	StartedAt       *time.Time                      `json:"startedAt,omitempty"`
	UptimeSeconds   float64                         `json:"uptimeSeconds"`
	Streams         map[pipeline.StreamID]StreamDTO `json:"streams"`
	SetsEmitted     uint64                          `json:"setsEmitted"`
	SetsPartial     uint64                          `json:"setsPartial"`
	SyncOverflow    uint64                          `json:"syncOverflow"`
	CadenceSkipped  uint64                          `json:"cadenceSkipped"`
	PersistOverflow uint64                          `json:"persistOverflow"`
	Persisted       uint64                          `json:"persisted"`
	Failed          uint64                          `json:"failed"`
	Files           uint64                          `json:"files"`
	LastIndex       int64                           `json:"lastIndex"`
	Consecutive     int                             `json:"consecutiveFailures"`
	LastError       string                          `json:"lastError,omitempty"`
	FatalError      string                          `json:"fatalError,omitempty"`
}

// StreamDTO is the per-stream part of StatusResponse.
type StreamDTO struct {
	Frames   uint64 `json:"frames"`
	Timeouts uint64 `json:"timeouts"`
	Errors   uint64 `json:"errors"`
	Dropped  uint64 `json:"dropped"`
	Absent   uint64 `json:"absent"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleStop(c *gin.Context) {
	state := s.target.Stats().State
	if state == controller.StateStopped || state == controller.StateDraining {
		c.JSON(http.StatusConflict, gin.H{"error": "capture is already " + state.String()})
		return
	}

	s.logger.Info("Stop requested over HTTP from %s", c.ClientIP())
	s.target.Stop()
	c.JSON(http.StatusAccepted, gin.H{"state": s.target.Stats().State.String()})
}

func (s *Server) status() StatusResponse {
	st := s.target.Stats()

	streams := make(map[pipeline.StreamID]StreamDTO, len(st.Streams))
	for id, ss := range st.Streams {
		streams[id] = StreamDTO{
			Frames:   ss.Frames,
			Timeouts: ss.Timeouts,
			Errors:   ss.Errors,
			Dropped:  ss.Dropped,
			Absent:   ss.Absent,
		}
	}

	resp := StatusResponse{
		Session:         s.sessionID,
		State:           st.State.String(),
		UptimeSeconds:   st.Duration().Seconds(),
		Streams:         streams,
		SetsEmitted:     st.SetsEmitted,
		SetsPartial:     st.SetsPartial,
		SyncOverflow:    st.SyncOverflow,
		CadenceSkipped:  st.CadenceSkipped,
		PersistOverflow: st.PersistOverflow,
		Persisted:       st.Persisted,
		Failed:          st.Failed,
		Files:           st.Files,
		LastIndex:       st.LastIndex,
		Consecutive:     st.ConsecutiveFailures,
		LastError:       st.LastError,
		FatalError:      st.FatalError,
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		resp.StartedAt = &started
	}
	return resp
}
