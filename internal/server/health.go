package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	app "github.com/kode4food/flownode"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/pkg/api"
)

const (
	statusHealthy  = "healthy"
	statusStopping = "stopping"
)

type snapshotter interface {
	Snapshot() *engine.Snapshot
}

func (s *Server) handleHealth(c *gin.Context) {
	status := statusHealthy
	if s.engine.Stopping() {
		status = statusStopping
	}
	code := http.StatusOK
	if status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, api.HealthResponse{
		Service: app.Name,
		Status:  status,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	m, ok := s.engine.Metrics().(snapshotter)
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  "metrics are not collected in memory",
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, m.Snapshot())
}

func (s *Server) handleRecover(c *gin.Context) {
	report, err := s.engine.RecoverAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RecoveryResponse{
		Scanned:   report.Scanned,
		Recovered: report.Recovered,
		Skipped:   report.Skipped,
		Rearmed:   report.Rearmed,
		Rechecked: report.Rechecked,
		Resumed:   report.Resumed,
	})
}
