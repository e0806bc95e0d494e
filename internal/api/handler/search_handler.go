package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/market-bridge/internal/api/dto"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/cuongbtq/market-bridge/internal/search"
	"github.com/gin-gonic/gin"
)

// SearchHandler handles search intake and worker relay requests
type SearchHandler struct {
	logger  *slog.Logger
	service SearchService
}

// NewSearchHandler creates a new SearchHandler instance
func NewSearchHandler(deps *Dependencies) *SearchHandler {
	return &SearchHandler{
		logger:  deps.Logger,
		service: deps.Search,
	}
}

// Search handles POST /api/search
// Enqueues one scrape job per marketplace and returns immediately
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	key := clientKey(c, req.ClientKey, req.IP, true)

	h.logger.Info("Search called",
		slog.String("client_key", key),
		slog.String("query", req.Query),
		slog.Int("marketplaces", len(req.Marketplaces)),
	)

	jobs, err := h.service.Submit(c.Request.Context(), search.SearchRequest{
		ClientKey:    key,
		Query:        req.Query,
		Page:         req.ResolvedPage(),
		Marketplaces: req.Marketplaces,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		h.logger.Error("Failed to start search", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to start search",
		})
		return
	}

	accepted := make([]dto.AcceptedJob, len(jobs))
	for i, job := range jobs {
		accepted[i] = dto.AcceptedJob{
			JobID:       job.ID,
			Marketplace: job.Marketplace,
			Page:        job.Page,
		}
	}

	c.JSON(http.StatusAccepted, dto.SearchResponse{
		Status: "Search started",
		Jobs:   accepted,
	})
}

// Status handles POST /api/status
// Relays a free-form worker status message to the client
func (h *SearchHandler) Status(c *gin.Context) {
	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	key := clientKey(c, req.ClientKey, req.IP, false)

	if err := h.service.PushStatus(key, req.Message); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "Status received",
	})
}

// Data handles POST /api/data
// Materializes product images and forwards the products to the client
func (h *SearchHandler) Data(c *gin.Context) {
	var req dto.DataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	key := clientKey(c, req.ClientKey, req.IP, false)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "client_key or ip is required",
		})
		return
	}

	products, single, err := req.Products()
	if err != nil {
		h.logger.Error("Invalid product data",
			slog.String("client_key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("Data received",
		slog.String("client_key", key),
		slog.String("marketplace", req.Marketplace),
		slog.Int("products", len(products)),
	)

	err = h.service.DeliverData(c.Request.Context(), search.DataDelivery{
		ClientKey:   key,
		Marketplace: req.Marketplace,
		Products:    products,
		Single:      single,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		h.logger.Error("Failed to process data",
			slog.String("client_key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process data",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
	})
}
