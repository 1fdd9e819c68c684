package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/shared/validate"
)

// ListSessions lists live sessions, oldest first
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.executor.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// OpenSession creates a session ahead of its first command
func (h *Handlers) OpenSession(c *gin.Context) {
	var req struct {
		SessionID   string            `json:"session_id"`
		ProjectPath string            `json:"project_path"`
		Env         map[string]string `json:"env"`
	}
	// An empty body opens a session with a generated id.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
			return
		}
	}

	if err := validate.Request("", req.SessionID, req.ProjectPath, req.Env); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.executor.OpenSession(executor.SessionOptions{
		ID:          req.SessionID,
		ProjectPath: req.ProjectPath,
		Env:         req.Env,
	})
	if err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"session": info,
	})
}

// GetSession returns one session with its recent history
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	info, ok := h.executor.Session(sessionID)
	if !ok {
		fail(c, http.StatusNotFound, "session not found")
		return
	}
	history, _ := h.executor.History(sessionID)
	c.JSON(http.StatusOK, gin.H{
		"session": info,
		"history": history,
	})
}

// CloseSession terminates a session
func (h *Handlers) CloseSession(c *gin.Context) {
	if !h.executor.CloseSession(c.Param("id")) {
		fail(c, http.StatusNotFound, "session not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
