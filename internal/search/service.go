package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/market-bridge/internal/domain"
)

// Enqueuer accepts jobs for per-client sequential processing
type Enqueuer interface {
	Enqueue(job domain.Job) error
}

// Notifier delivers events to a client, best effort
type Notifier interface {
	Push(clientKey string, event domain.Event)
}

// Materializer downloads a product's images and rewrites the record
type Materializer interface {
	Materialize(ctx context.Context, clientKey, marketplace string, product *domain.Product) error
}

// Config holds orchestrator dependencies
type Config struct {
	Enqueuer            Enqueuer
	Notifier            Notifier
	Materializer        Materializer
	Logger              *slog.Logger
	DefaultMarketplaces []string
	DefaultPage         int
}

// Service turns search requests into marketplace jobs and relays worker output to clients
type Service struct {
	enqueuer            Enqueuer
	notifier            Notifier
	materializer        Materializer
	logger              *slog.Logger
	defaultMarketplaces []string
	defaultPage         int
}

// SearchRequest is one client's search across a set of marketplaces
type SearchRequest struct {
	ClientKey    string
	Query        string
	Page         int
	Marketplaces []string
}

// DataDelivery is a batch of finished products from the worker.
// Single records whether the worker sent one object rather than a list,
// so the client receives the same shape.
type DataDelivery struct {
	ClientKey   string
	Marketplace string
	Products    []domain.Product
	Single      bool
}

// NewService creates the orchestrator
func NewService(cfg *Config) *Service {
	marketplaces := cfg.DefaultMarketplaces
	if len(marketplaces) == 0 {
		marketplaces = domain.DefaultMarketplaces
	}

	page := cfg.DefaultPage
	if page <= 0 {
		page = domain.DefaultPage
	}

	return &Service{
		enqueuer:            cfg.Enqueuer,
		notifier:            cfg.Notifier,
		materializer:        cfg.Materializer,
		logger:              cfg.Logger,
		defaultMarketplaces: marketplaces,
		defaultPage:         page,
	}
}

// Submit enqueues one job per marketplace and returns without waiting for any of them
func (s *Service) Submit(ctx context.Context, req SearchRequest) ([]domain.Job, error) {
	clientKey := strings.TrimSpace(req.ClientKey)
	query := strings.TrimSpace(req.Query)

	if clientKey == "" {
		return nil, domain.NewValidationError("client key is required")
	}
	if query == "" {
		return nil, domain.NewValidationError("query is required")
	}
	if req.Page < 0 {
		return nil, domain.NewValidationError("page must be positive, got %d", req.Page)
	}

	page := req.Page
	if page == 0 {
		page = s.defaultPage
	}

	marketplaces := req.Marketplaces
	if len(marketplaces) == 0 {
		marketplaces = s.defaultMarketplaces
	}
	for i, mp := range marketplaces {
		if strings.TrimSpace(mp) == "" {
			return nil, domain.NewValidationError("marketplace at position %d is empty", i)
		}
	}

	jobs := make([]domain.Job, 0, len(marketplaces))
	for _, mp := range marketplaces {
		job := domain.NewJob(clientKey, query, strings.TrimSpace(mp), page)
		if err := s.enqueuer.Enqueue(job); err != nil {
			return jobs, fmt.Errorf("failed to enqueue %s job: %w", job.Marketplace, err)
		}
		jobs = append(jobs, job)
	}

	s.logger.Info("Search accepted",
		slog.String("client_key", clientKey),
		slog.String("query", query),
		slog.Int("page", page),
		slog.Int("marketplaces", len(jobs)),
	)

	return jobs, nil
}

// PushStatus relays an arbitrary status message to a client
func (s *Service) PushStatus(clientKey, message string) error {
	if strings.TrimSpace(clientKey) == "" {
		return domain.NewValidationError("client key is required")
	}

	s.notifier.Push(clientKey, domain.StatusEvent(message))
	return nil
}

// DeliverData materializes product images and pushes the enriched records to the client.
// The images are stored even when the client is not connected.
func (s *Service) DeliverData(ctx context.Context, d DataDelivery) error {
	if strings.TrimSpace(d.ClientKey) == "" {
		return domain.NewValidationError("client key is required")
	}
	if strings.TrimSpace(d.Marketplace) == "" {
		return domain.NewValidationError("marketplace is required")
	}
	if d.Single && len(d.Products) != 1 {
		return domain.NewValidationError("single delivery must carry exactly one product, got %d", len(d.Products))
	}

	for i := range d.Products {
		if err := s.materializer.Materialize(ctx, d.ClientKey, d.Marketplace, &d.Products[i]); err != nil {
			s.logger.Error("Failed to materialize product images",
				slog.String("client_key", d.ClientKey),
				slog.String("marketplace", d.Marketplace),
				slog.Any("error", err),
			)
			s.notifier.Push(d.ClientKey, domain.ErrorEvent(fmt.Sprintf("Failed to download images: %v", err)))
			return fmt.Errorf("failed to materialize product images: %w", err)
		}
	}

	var payload any = d.Products
	if d.Single {
		payload = d.Products[0]
	}
	s.notifier.Push(d.ClientKey, domain.DataEvent(d.Marketplace, payload))

	s.logger.Info("Product data delivered",
		slog.String("client_key", d.ClientKey),
		slog.String("marketplace", d.Marketplace),
		slog.Int("products", len(d.Products)),
	)
	return nil
}
