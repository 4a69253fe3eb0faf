package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so clients can parse error responses.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic while serving request", "path", c.Request.URL.Path, "panic", r)
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// canonicalErrors ensures that every error response (>=400) carries a JSON
// body of the form {"error": msg}, whatever the handler wrote.
func canonicalErrors(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		origWriter := c.Writer
		bcw := &bodyCaptureWriter{ResponseWriter: origWriter}
		c.Writer = bcw

		c.Next()

		status := bcw.Status()
		buf := bcw.body.Bytes()
		ct := bcw.Header().Get("Content-Type")

		if status >= 400 {
			msg := errorMessage(buf, ct)
			if msg == "" {
				if len(c.Errors) > 0 {
					msg = c.Errors.Last().Error()
				} else {
					msg = http.StatusText(status)
				}
			}

			origWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
			origWriter.WriteHeader(status)
			out, _ := json.Marshal(gin.H{"error": msg})
			if _, err := origWriter.Write(out); err != nil {
				logger.Error("canonicalErrors: failed to write error response", "error", err)
			}
			return
		}

		if len(buf) > 0 {
			origWriter.WriteHeader(status)
			if _, err := origWriter.Write(buf); err != nil {
				logger.Error("canonicalErrors: failed to write response body", "error", err)
			}
		}
	}
}

// errorMessage extracts the message of a buffered error body. JSON bodies
// contribute their "error" or "message" field, anything else its raw text.
func errorMessage(buf []byte, contentType string) string {
	if len(buf) == 0 {
		return ""
	}
	if strings.Contains(contentType, "application/json") {
		var parsed map[string]interface{}
		if err := json.Unmarshal(buf, &parsed); err == nil {
			if e, ok := parsed["error"].(string); ok {
				return e
			}
			if m, ok := parsed["message"].(string); ok {
				return m
			}
		}
	}
	return string(bytes.TrimSpace(buf))
}

// bodyCaptureWriter buffers response body writes so middleware can inspect
// and optionally rewrite the output before sending to the client.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

// Write buffers the bytes without forwarding them
func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

// WriteString buffers the string without forwarding it
func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}
