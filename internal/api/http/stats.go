package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats combines executor statistics with metric totals
func (h *Handlers) Stats(c *gin.Context) {
	body := gin.H{"executor": h.executor.Stats()}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
