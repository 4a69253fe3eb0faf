package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/clipsync/internal/identity"
	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/storage"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrUploadRejected):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a JSON error. Server-side failures are logged and their detail hidden.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	c.Header("Content-Type", "application/json; charset=utf-8")
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "path", c.FullPath(), "status", status, "error", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
