package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/dto"
	"github.com/cuongbtq/market-bridge/internal/api/model"
	"github.com/cuongbtq/market-bridge/internal/api/storage"
	"github.com/cuongbtq/market-bridge/internal/completion"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var journalStatuses = map[string]bool{
	domain.JobStatusQueued:    true,
	domain.JobStatusRunning:   true,
	domain.JobStatusCompleted: true,
	domain.JobStatusFailed:    true,
	domain.JobStatusTimedOut:  true,
}

// JobHandler handles completion callbacks and job journal queries
type JobHandler struct {
	logger      *slog.Logger
	completions CompletionResolver
	jobs        JobStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		completions: deps.Completions,
		jobs:        deps.Jobs,
	}
}

// Complete handles POST /api/v1/jobs/complete
// Delivers the worker's completion signal to the job waiting for it
func (h *JobHandler) Complete(c *gin.Context) {
	var req dto.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	signal := completion.NewSignal(req.RequestID, req.ClientKey, req.IP, req.Marketplace, req.Status, req.Error)
	if err := completion.Validate(signal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("Complete called",
		slog.String("request_id", signal.RequestID),
		slog.String("client_key", signal.ClientKey),
		slog.String("marketplace", signal.Marketplace),
		slog.String("status", signal.Status),
	)

	if !h.completions.Resolve(signal) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No pending job matches the completion signal",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "accepted",
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists journal entries with optional filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := strings.ToUpper(req.Status)
	if status != "" && !journalStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status filter",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		ClientKey:   req.ClientKey,
		Marketplace: req.Marketplace,
		Status:      status,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func toJobDTO(job *model.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:       job.JobID,
		ClientKey:   job.ClientKey,
		Query:       job.Query,
		Marketplace: job.Marketplace,
		Page:        job.Page,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Error != nil {
		out.Error = *job.Error
	}
	if job.StartedAt != nil {
		out.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		out.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return out
}
