// Package rest provides the Gin-based operator API.
package rest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/monitor"
	"github.com/sufyanAbbasi/efflux/internal/registry"
)

// Monitor is what the API reads and drives.
type Monitor interface {
	Peers() []monitor.PeerView
	Peer(key string) (monitor.PeerView, bool)
	Edges() []registry.Edge
	Activate(ctx context.Context, addr string) error
	Deactivate()
	Logout() error
	SessionView() (monitor.SessionView, bool)
	Perform(t models.InteractionType, pos models.Position, target string, ct models.CytokineType) (bool, error)
	Entities() []liveness.Entity
}

// Server is the REST API server.
type Server struct {
	engine  *gin.Engine
	monitor Monitor
	logger  *zap.Logger

	mu      sync.Mutex
	httpSrv *http.Server
	closed  bool
}

// New creates a REST Server.
func New(m Monitor, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		monitor: m,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves on addr until Shutdown. It returns immediately if Shutdown
// already ran.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("REST API listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// registerRoutes sets up the /monitor context path.
func (s *Server) registerRoutes() {
	m := s.engine.Group("/monitor")

	peers := m.Group("/peers")
	{
		peers.GET("", s.listPeers)
		peers.GET("/:id", s.getPeer)
	}
	m.GET("/edges", s.listEdges)

	active := m.Group("/active")
	{
		active.POST("", s.activate)
		active.DELETE("", s.deactivate)
	}

	sess := m.Group("/session")
	{
		sess.GET("", s.getSession)
		sess.DELETE("", s.logout)
		sess.POST("/actions", s.perform)
	}

	m.GET("/entities", s.listEntities)
}

// --- Discovery graph ---

func (s *Server) listPeers(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Peers())
}

func (s *Server) getPeer(c *gin.Context) {
	p, ok := s.monitor.Peer(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer: " + c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) listEdges(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Edges())
}

// --- Active peer ---

type activateRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.monitor.Activate(c.Request.Context(), req.Address); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, monitor.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	view, _ := s.monitor.SessionView()
	c.JSON(http.StatusOK, view)
}

func (s *Server) deactivate(c *gin.Context) {
	s.monitor.Deactivate()
	c.JSON(http.StatusOK, gin.H{"result": true})
}

// --- Session ---

func (s *Server) getSession(c *gin.Context) {
	view, ok := s.monitor.SessionView()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": monitor.ErrNoActivePeer.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) logout(c *gin.Context) {
	if err := s.monitor.Logout(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

type actionRequest struct {
	Type     string `json:"type" binding:"required"`
	X        int32  `json:"x"`
	Y        int32  `json:"y"`
	Target   string `json:"target"`
	Cytokine string `json:"cytokine"`
}

func (s *Server) perform(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, ok := models.ParseInteractionType(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Type})
		return
	}
	sent, err := s.monitor.Perform(t, models.Position{X: req.X, Y: req.Y}, req.Target, models.ParseCytokineType(req.Cytokine))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": sent})
}

// --- Entities ---

func (s *Server) listEntities(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Entities())
}
