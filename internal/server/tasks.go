package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flownode/internal/engine/pending"
	"github.com/kode4food/flownode/pkg/api"
)

// listTasks answers GET /engine/task?user=u&actor=a&actor=b&offset=0&limit=20
func (s *Server) listTasks(c *gin.Context) {
	f := pending.Filter{UserID: api.UserID(c.Query("user"))}
	for _, a := range c.QueryArray("actor") {
		f.ActorIDs = append(f.ActorIDs, api.ActorID(a))
	}

	var p pending.Page
	var err error
	if p.Offset, err = queryInt(c, "offset"); err != nil {
		badRequest(c, ErrInvalidQuery, err)
		return
	}
	if p.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, ErrInvalidQuery, err)
		return
	}

	tasks, err := s.engine.PendingTasks(c.Request.Context(), f, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TaskListResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}

func (s *Server) taskRows(c *gin.Context) {
	id := api.NodeID(c.Param("nodeID"))
	rows, err := s.engine.PendingRows(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) assignTask(c *gin.Context) {
	var req api.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, ErrInvalidJSON, err)
		return
	}

	id := api.NodeID(c.Param("nodeID"))
	res, err := s.engine.AssignTask(c.Request.Context(), id, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) executeTask(c *gin.Context) {
	var req api.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, ErrInvalidJSON, err)
		return
	}

	id := api.NodeID(c.Param("nodeID"))
	res, err := s.engine.ExecuteTask(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
