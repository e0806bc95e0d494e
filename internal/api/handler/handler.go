package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/model"
	"github.com/cuongbtq/market-bridge/internal/api/storage"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/cuongbtq/market-bridge/internal/notify"
	"github.com/cuongbtq/market-bridge/internal/search"
	"github.com/gin-gonic/gin"
)

// SearchService accepts searches and relays worker output to clients
type SearchService interface {
	Submit(ctx context.Context, req search.SearchRequest) ([]domain.Job, error)
	PushStatus(clientKey, message string) error
	DeliverData(ctx context.Context, d search.DataDelivery) error
}

// CompletionResolver hands completion signals to the waiting job
type CompletionResolver interface {
	Resolve(signal domain.CompletionSignal) bool
}

// QueueInspector reports per-client queue state
type QueueInspector interface {
	Pending(clientKey string) int
	Processing(clientKey string) bool
}

// ChannelRegistry tracks the live channel of each client
type ChannelRegistry interface {
	Register(clientKey string, ch notify.Channel)
	Release(clientKey string, ch notify.Channel) bool
	Connected(clientKey string) bool
}

// JobStore reads the job journal
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
}

// ImageCleaner prunes materialized images
type ImageCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// WebSocketSettings controls the live channel endpoint
type WebSocketSettings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	HealthCheck    func(ctx context.Context) error
	Search         SearchService
	Completions    CompletionResolver
	Queues         QueueInspector
	Channels       ChannelRegistry
	Jobs           JobStore
	Images         ImageCleaner
	ImageRetention time.Duration
	WebSocket      WebSocketSettings
}

// clientKey picks the explicit key, then the legacy ip field, then the caller's address when allowed
func clientKey(c *gin.Context, key, ip string, useRemote bool) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	if k := strings.TrimSpace(ip); k != "" {
		return k
	}
	if useRemote {
		return c.ClientIP()
	}
	return ""
}
