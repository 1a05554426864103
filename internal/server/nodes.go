package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flownode/pkg/api"
)

type nodeAction func(context.Context, api.NodeID) (*api.StepResult, error)

func (s *Server) getNode(c *gin.Context) {
	id := api.NodeID(c.Param("nodeID"))
	n, err := s.engine.GetNode(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) triggerNode(c *gin.Context) {
	var req api.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, ErrInvalidJSON, err)
		return
	}

	id := api.NodeID(c.Param("nodeID"))
	if _, err := s.engine.GetNode(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	trig := req.Trigger
	if err := s.engine.Trigger(c.Request.Context(), id, &trig); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) skipNode(c *gin.Context) {
	s.runNodeAction(c, s.engine.SkipFailed)
}

func (s *Server) replayNode(c *gin.Context) {
	s.runNodeAction(c, s.engine.ReplayFailed)
}

func (s *Server) runNodeAction(c *gin.Context, fn nodeAction) {
	id := api.NodeID(c.Param("nodeID"))
	res, err := fn(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
