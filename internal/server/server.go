package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/flownode/internal/archive"
	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/util"
)

type (
	// Server implements the HTTP API server for the engine
	Server struct {
		engine  *engine.Engine
		catalog Catalog
		archive *archive.Archiver
		sockets util.Set[*Client]
		mu      sync.Mutex
	}

	// Catalog lists the process definitions that can be started
	Catalog interface {
		List() []*api.ProcessDefinition
	}
)

var (
	ErrInvalidJSON       = errors.New("invalid JSON request")
	ErrInvalidQuery      = errors.New("invalid query parameter")
	ErrDefinitionMissing = errors.New("definition ID is required")
	ErrMessageName       = errors.New("message name is required")
	ErrArchiveDisabled   = errors.New("archiving is not enabled")
)

// NewServer creates a new HTTP API server. The archiver may be nil when
// archiving is disabled
func NewServer(
	eng *engine.Engine, catalog Catalog, arch *archive.Archiver,
) *Server {
	return &Server{
		engine:  eng,
		catalog: catalog,
		archive: arch,
		sockets: util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	eng := router.Group("/engine")
	{
		eng.GET("/health", s.handleHealth)
		eng.GET("/metrics", s.handleMetrics)
		eng.POST("/recover", s.handleRecover)

		// Definitions
		eng.GET("/definition", s.listDefinitions)

		// Process endpoints
		eng.POST("/process", s.startProcess)
		eng.GET("/process/:processID", s.getProcess)
		eng.GET("/process/:processID/tree", s.getProcessTree)
		eng.GET("/process/:processID/archive", s.getArchived)
		eng.POST("/process/:processID/message", s.sendMessage)
		eng.POST("/process/:processID/abort", s.abortProcess)
		eng.POST("/process/:processID/cancel", s.cancelProcess)

		// Flow-node instance endpoints
		eng.GET("/node/:nodeID", s.getNode)
		eng.POST("/node/:nodeID/trigger", s.triggerNode)
		eng.POST("/node/:nodeID/skip", s.skipNode)
		eng.POST("/node/:nodeID/replay", s.replayNode)

		// Task list
		eng.GET("/task", s.listTasks)
		eng.GET("/task/:nodeID/rows", s.taskRows)
		eng.POST("/task/:nodeID/assign", s.assignTask)
		eng.POST("/task/:nodeID/execute", s.executeTask)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func badRequest(c *gin.Context, base error, err error) {
	msg := base.Error()
	if err != nil {
		msg = fmt.Sprintf("%s: %v", base, err)
	}
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:  msg,
		Status: http.StatusBadRequest,
	})
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	}
	c.JSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrProcessNotFound),
		errors.Is(err, engine.ErrNodeNotFound),
		errors.Is(err, definition.ErrDefinitionNotFound),
		errors.Is(err, archive.ErrNotArchived),
		errors.Is(err, archive.ErrNothingToStore):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAssignee):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrMissingUser),
		errors.Is(err, engine.ErrInvalidTrigger):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInstanceTerminal),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrProcessFinished),
		errors.Is(err, engine.ErrNotFailed),
		errors.Is(err, engine.ErrNotHumanTask):
		return http.StatusConflict
	case errors.Is(err, api.ErrModeling):
		return http.StatusUnprocessableEntity
	case store.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
