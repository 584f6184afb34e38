// Package api exposes the ops surface: health, counters, recent events,
// and a live websocket stream.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

// recentCapacity bounds the in-memory recent events ring.
const recentCapacity = 200

// Server is the embedded ops HTTP server.
type Server struct {
	engine  *gin.Engine
	hub     *Hub
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	recent []model.RiskEvent
}

// NewServer wires the routes. The returned server also implements the
// action sink contract to capture recent events.
func NewServer(m *metrics.Metrics, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, hub: hub, metrics: m, logger: logger}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/stats", s.handleStats)
	engine.GET("/events/recent", s.handleRecent)
	if hub != nil {
		engine.GET("/ws", hub.Subscribe)
	}

	return s
}

// Serve blocks until the context ends or the listener fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleRecent(c *gin.Context) {
	s.mu.RLock()
	events := make([]model.RiskEvent, len(s.recent))
	copy(events, s.recent)
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) Name() string { return "recent" }

// Handle records the event in the recent ring, newest first.
func (s *Server) Handle(_ context.Context, ev model.RiskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]model.RiskEvent{ev}, s.recent...)
	if len(s.recent) > recentCapacity {
		s.recent = s.recent[:recentCapacity]
	}
	return nil
}
