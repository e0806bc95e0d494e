package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// QueueHandler exposes per-client queue state and image maintenance
type QueueHandler struct {
	logger         *slog.Logger
	queues         QueueInspector
	channels       ChannelRegistry
	images         ImageCleaner
	imageRetention time.Duration
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger:         deps.Logger,
		queues:         deps.Queues,
		channels:       deps.Channels,
		images:         deps.Images,
		imageRetention: deps.ImageRetention,
	}
}

// QueueState handles GET /api/v1/queues/:client_key
func (h *QueueHandler) QueueState(c *gin.Context) {
	key := c.Param("client_key")

	c.JSON(http.StatusOK, dto.QueueStateResponse{
		ClientKey:  key,
		Pending:    h.queues.Pending(key),
		Processing: h.queues.Processing(key),
		Connected:  h.channels.Connected(key),
	})
}

// Cleanup handles POST /api/cleanup
// Removes materialized images older than the retention window
func (h *QueueHandler) Cleanup(c *gin.Context) {
	h.logger.Info("Cleanup called",
		slog.Duration("retention", h.imageRetention),
	)

	deleted, err := h.images.Cleanup(c.Request.Context(), h.imageRetention)
	if err != nil {
		h.logger.Error("Failed to clean up images", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"error":   "Failed to clean up images",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{
		Status:       "success",
		Message:      fmt.Sprintf("Removed %d files", deleted),
		DeletedCount: deleted,
	})
}
