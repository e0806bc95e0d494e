package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/market-bridge/internal/completion"
	"github.com/cuongbtq/market-bridge/internal/domain"
)

const maxErrorBody = 4 << 10

// Config holds worker client configuration
type Config struct {
	BaseURL           string
	ParsePath         string
	CallbackURL       string
	AcceptTimeout     time.Duration
	CompletionTimeout time.Duration
	HTTPClient        *http.Client
	Tracker           *completion.Tracker
	Logger            *slog.Logger
}

// Client hands jobs to the external scraping worker and waits for their completion signal
type Client struct {
	endpoint          string
	callbackURL       string
	acceptTimeout     time.Duration
	completionTimeout time.Duration
	httpClient        *http.Client
	tracker           *completion.Tracker
	logger            *slog.Logger
}

// parseRequest is the body the worker's parse endpoint expects
type parseRequest struct {
	Query       string `json:"query"`
	Marketplace string `json:"marketplace"`
	IP          string `json:"ip"`
	PageNumber  int    `json:"pageNumber"`
	RequestID   string `json:"request_id"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// New creates a worker client
func New(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	parsePath := cfg.ParsePath
	if parsePath == "" {
		parsePath = "/parse"
	}

	acceptTimeout := cfg.AcceptTimeout
	if acceptTimeout <= 0 {
		acceptTimeout = 500 * time.Second
	}

	completionTimeout := cfg.CompletionTimeout
	if completionTimeout <= 0 {
		completionTimeout = 5 * time.Minute
	}

	return &Client{
		endpoint:          strings.TrimRight(cfg.BaseURL, "/") + parsePath,
		callbackURL:       cfg.CallbackURL,
		acceptTimeout:     acceptTimeout,
		completionTimeout: completionTimeout,
		httpClient:        httpClient,
		tracker:           cfg.Tracker,
		logger:            cfg.Logger,
	}
}

// Process submits job and resolves once the worker confirms completion,
// reports failure, or one of the two time windows runs out.
func (c *Client) Process(ctx context.Context, job domain.Job) domain.Outcome {
	waiter := c.tracker.Await(job)
	defer waiter.Cancel()

	if err := c.submit(ctx, job); err != nil {
		return classify(err)
	}

	c.logger.Debug("Worker accepted job",
		slog.String("job_id", job.ID),
		slog.String("marketplace", job.Marketplace),
	)

	timer := time.NewTimer(c.completionTimeout)
	defer timer.Stop()

	select {
	case signal := <-waiter.Done():
		if signal.Status == domain.CompletionFailed {
			msg := signal.Error
			if msg == "" {
				msg = "worker reported failure"
			}
			return domain.Failure(&domain.WorkerError{Message: msg})
		}
		return domain.Success()

	case <-timer.C:
		return domain.Timeout(fmt.Errorf("%w: no completion signal within %s", domain.ErrWorkerTimeout, c.completionTimeout))

	case <-ctx.Done():
		return domain.Timeout(fmt.Errorf("%w: %v", domain.ErrWorkerTimeout, ctx.Err()))
	}
}

// submit posts the job to the worker and returns once it is accepted
func (c *Client) submit(ctx context.Context, job domain.Job) error {
	body, err := json.Marshal(parseRequest{
		Query:       job.Query,
		Marketplace: job.Marketplace,
		IP:          job.ClientKey,
		PageNumber:  job.Page,
		RequestID:   job.ID,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal parse request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.acceptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.WorkerError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// classify turns a submit error into an outcome
func classify(err error) domain.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Timeout(fmt.Errorf("%w: %v", domain.ErrWorkerTimeout, err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Timeout(fmt.Errorf("%w: %v", domain.ErrWorkerTimeout, err))
	}

	return domain.Failure(err)
}

// errorMessage extracts a message from a worker error body
func errorMessage(raw []byte, fallback string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}
