package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/clipsync/internal/identity"
	"github.com/johnwmail/clipsync/internal/services"
	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/models"
)

// DeviceHeader carries the submitting device label
const DeviceHeader = "X-Clipsync-Device"

const heartbeatInterval = 25 * time.Second

// ClipsHandler serves the clip API for web clients
type ClipsHandler struct {
	svc          *services.ClipService
	session      services.SessionConfig
	maxImageSize int64
	logger       *slog.Logger
}

// NewClipsHandler creates a clips handler. session configures the per-connection sync
// sessions behind the live stream.
func NewClipsHandler(svc *services.ClipService, session services.SessionConfig, maxImageSize int64, logger *slog.Logger) *ClipsHandler {
	if maxImageSize <= 0 {
		maxImageSize = upload.DefaultMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if session.Origin == "" {
		session.Origin = models.OriginWeb
	}
	return &ClipsHandler{svc: svc, session: session, maxImageSize: maxImageSize, logger: logger}
}

// ClipView is the JSON form of a clip
type ClipView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
	ImageRef  string `json:"imageRef,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Origin    string `json:"origin"`
}

func toViews(clips []models.Clip) []ClipView {
	views := make([]ClipView, 0, len(clips))
	for _, clip := range clips {
		views = append(views, ClipView{
			ID:        clip.ID,
			Kind:      string(clip.Kind()),
			Content:   clip.Text(),
			ImageRef:  clip.ImageRef(),
			CreatedAt: clip.CreatedAt,
			ExpiresAt: clip.ExpiresAt,
			Origin:    string(clip.Origin),
		})
	}
	return views
}

type createTextRequest struct {
	Content string `json:"content"`
}

// origin reads the device label, defaulting to the handler's origin
func (h *ClipsHandler) origin(c *gin.Context) models.Origin {
	if device := c.GetHeader(DeviceHeader); device != "" {
		return models.NormalizeOrigin(device)
	}
	return h.session.Origin
}

// requireUser aborts with 401 when the request carries no identity
func (h *ClipsHandler) requireUser(c *gin.Context) (string, bool) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, h.logger, "unauthenticated", identity.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}

// CreateText handles POST /api/v1/clips
func (h *ClipsHandler) CreateText(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req createTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	clip, err := h.svc.AddText(c.Request.Context(), userID, req.Content, h.origin(c))
	if errors.Is(err, services.ErrEmptyContent) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		respondError(c, h.logger, "Failed to store clip", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": clip.ID})
}

// CreateImage handles POST /api/v1/clips/image with a multipart "file" field
func (h *ClipsHandler) CreateImage(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > h.maxImageSize {
		respondError(c, h.logger, "Upload failed", fmt.Errorf("%w: %w: %d bytes exceeds %d", upload.ErrUploadRejected, upload.ErrTooLarge, header.Size, h.maxImageSize))
		return
	}
	data, exceeded, err := readLimited(file, h.maxImageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	if exceeded {
		respondError(c, h.logger, "Upload failed", fmt.Errorf("%w: %w: exceeds %d bytes", upload.ErrUploadRejected, upload.ErrTooLarge, h.maxImageSize))
		return
	}

	// Browsers fall back to application/octet-stream; only image/* is worth checking
	declared := header.Header.Get("Content-Type")
	if !strings.HasPrefix(declared, "image/") {
		declared = ""
	}

	clip, err := h.svc.AddImage(c.Request.Context(), userID, data, declared, h.origin(c))
	if err != nil {
		respondError(c, h.logger, "Upload failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": clip.ID, "imageRef": clip.ImageRef()})
}

// readLimited reads up to limit bytes and reports whether the reader held more
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	buf, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(buf)) > limit {
		return nil, true, nil
	}
	return buf, false, nil
}

// Delete handles DELETE /api/v1/clips/:id. Deleting a missing clip succeeds.
func (h *ClipsHandler) Delete(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.logger, "Failed to delete clip", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /api/v1/clips
func (h *ClipsHandler) List(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	clips, err := h.svc.ListLive(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "Failed to list clips", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clips": toViews(clips)})
}

// Stream handles GET /api/v1/clips/stream. Each connection runs its own sync session and
// receives a "clips" event with the full live list on every change. Session notifications
// are sent as "status" events. The session stops when the client disconnects.
func (h *ClipsHandler) Stream(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	session := services.NewSession(h.svc, identity.Static(userID), nil, h.session, h.logger)
	if err := session.Start(); err != nil {
		session.Stop()
		respondError(c, h.logger, "Failed to subscribe", err)
		return
	}
	defer session.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	updates := session.Updates()
	events := session.Events()
	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			h.logger.Debug("Stream client disconnected", "user", userID)
			return
		case clips, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("clips", gin.H{"clips": toViews(clips)})
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("status", gin.H{
				"kind":      ev.Kind.String(),
				"message":   ev.Message,
				"uploading": ev.Uploading,
			})
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UnixMilli())
		}
		c.Writer.Flush()
	}
}
