package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flownode/pkg/api"
)

func (s *Server) listDefinitions(c *gin.Context) {
	defs := s.catalog.List()
	c.JSON(http.StatusOK, api.DefinitionsListResponse{
		Definitions: defs,
		Count:       len(defs),
	})
}

func (s *Server) startProcess(c *gin.Context) {
	var req api.StartProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, ErrInvalidJSON, err)
		return
	}
	if req.DefinitionID == "" {
		badRequest(c, ErrDefinitionMissing, nil)
		return
	}

	p, err := s.engine.StartProcess(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.StartProcessResponse{
		ProcessID: p.ID,
	})
}

func (s *Server) getProcess(c *gin.Context) {
	pid := api.ProcessID(c.Param("processID"))
	res, err := s.engine.DescribeProcess(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getProcessTree(c *gin.Context) {
	pid := api.ProcessID(c.Param("processID"))
	tree, err := s.engine.ProcessTree(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(tree) == 0 {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  "process tree not found: " + string(pid),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, api.ProcessTreeResponse{
		Processes: tree,
		Count:     len(tree),
	})
}

func (s *Server) getArchived(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  ErrArchiveDisabled.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	pid := api.ProcessID(c.Param("processID"))
	rec, err := s.archive.Load(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req api.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, ErrInvalidJSON, err)
		return
	}
	if req.Name == "" {
		badRequest(c, ErrMessageName, nil)
		return
	}

	pid := api.ProcessID(c.Param("processID"))
	count, err := s.engine.SendMessage(
		c.Request.Context(), pid, req.Name, req.Payload,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Delivered: count})
}

func (s *Server) abortProcess(c *gin.Context) {
	pid := api.ProcessID(c.Param("processID"))
	if err := s.engine.AbortProcess(c.Request.Context(), pid); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) cancelProcess(c *gin.Context) {
	pid := api.ProcessID(c.Param("processID"))
	if err := s.engine.CancelProcess(c.Request.Context(), pid); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
