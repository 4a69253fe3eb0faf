package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SystemHandler handles system endpoints
type SystemHandler struct {
	version string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version}
}

// Health handles health check via GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "clipsync",
		"version": h.version,
	})
}
