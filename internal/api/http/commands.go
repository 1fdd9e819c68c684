package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/shared/validate"
)

type executeRequest struct {
	Command     string            `json:"command" binding:"required"`
	SessionID   string            `json:"session_id"`
	TimeoutMs   int64             `json:"timeout_ms" binding:"gte=0"`
	ProjectPath string            `json:"project_path"`
	Env         map[string]string `json:"env"`
}

// Execute runs a command and streams every snapshot as an SSE "response"
// event. The stream ends after the terminal snapshot.
func (h *Handlers) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		fail(c, http.StatusBadRequest, executor.ErrEmptyCommand.Error())
		return
	}
	if err := validate.Request(req.Command, req.SessionID, req.ProjectPath, req.Env); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	responses := h.executor.Execute(ctx, executor.Request{
		Command:     req.Command,
		SessionID:   req.SessionID,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
		ProjectPath: req.ProjectPath,
		Env:         req.Env,
	})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			c.SSEvent("response", resp)
			c.Writer.Flush()
		case <-ctx.Done():
			h.logger.Debug("Execute stream closed by client", zap.String("session_id", req.SessionID))
			return
		}
	}
}

// SendInput writes to the terminal of a running command
func (h *Handlers) SendInput(c *gin.Context) {
	var req struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if err := validate.Input(req.Data); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if !h.executor.SendInput(c.Param("id"), []byte(req.Data)) {
		fail(c, http.StatusConflict, "command is not running")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Resize changes the terminal size of the command's session
func (h *Handlers) Resize(c *gin.Context) {
	var req struct {
		Cols int `json:"cols" binding:"required,min=1,max=65535"`
		Rows int `json:"rows" binding:"required,min=1,max=65535"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	if !h.executor.ResizeTerminal(c.Param("id"), req.Cols, req.Rows) {
		fail(c, http.StatusNotFound, "command not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Cancel cancels a pending or running command
func (h *Handlers) Cancel(c *gin.Context) {
	if !h.executor.Cancel(c.Param("id")) {
		fail(c, http.StatusNotFound, "command not found or already finished")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
