package workerclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/market-bridge/internal/completion"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	tracker  *completion.Tracker
	client   *Client
	received chan parseRequest
}

func newFixture(t *testing.T, handler func(w http.ResponseWriter, req parseRequest), acceptTimeout, completionTimeout time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		tracker:  completion.NewTracker(testLogger()),
		received: make(chan parseRequest, 10),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		f.received <- req
		handler(w, req)
	}))
	t.Cleanup(srv.Close)

	f.client = New(&Config{
		BaseURL:           srv.URL + "/",
		CallbackURL:       "http://bridge/api/v1/jobs/complete",
		AcceptTimeout:     acceptTimeout,
		CompletionTimeout: completionTimeout,
		Tracker:           f.tracker,
		Logger:            testLogger(),
	})
	return f
}

func TestClient_SuccessAfterCompletionSignal(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(w http.ResponseWriter, req parseRequest) {
		w.WriteHeader(http.StatusAccepted)
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.tracker.Resolve(domain.CompletionSignal{RequestID: req.RequestID, Status: domain.CompletionDone})
		}()
	}, time.Second, time.Second)

	job := domain.NewJob("10.0.0.5", "iphone 15", "Ozon", 8)
	outcome := f.client.Process(context.Background(), job)

	assert.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	assert.NoError(t, outcome.Err)

	req := <-f.received
	assert.Equal(t, "iphone 15", req.Query)
	assert.Equal(t, "Ozon", req.Marketplace)
	assert.Equal(t, "10.0.0.5", req.IP)
	assert.Equal(t, 8, req.PageNumber)
	assert.Equal(t, job.ID, req.RequestID)
	assert.Equal(t, "http://bridge/api/v1/jobs/complete", req.CallbackURL)
	assert.Equal(t, 0, f.tracker.Pending())
}

func TestClient_SignalArrivingBeforeAcceptanceResponseIsNotLost(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(w http.ResponseWriter, req parseRequest) {
		f.tracker.Resolve(domain.CompletionSignal{RequestID: req.RequestID, Status: domain.CompletionDone})
		w.WriteHeader(http.StatusOK)
	}, time.Second, 200*time.Millisecond)

	outcome := f.client.Process(context.Background(), domain.NewJob("c", "q", "DNS", 1))
	assert.Equal(t, domain.OutcomeSuccess, outcome.Kind)
}

func TestClient_WorkerErrorResponse(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ parseRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"marketplace unavailable"}`))
	}, time.Second, time.Second)

	outcome := f.client.Process(context.Background(), domain.NewJob("c", "q", "Ozon", 1))

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	var workerErr *domain.WorkerError
	require.ErrorAs(t, outcome.Err, &workerErr)
	assert.Equal(t, http.StatusInternalServerError, workerErr.StatusCode)
	assert.Equal(t, "marketplace unavailable", workerErr.Message)
	assert.Equal(t, 0, f.tracker.Pending())
}

func TestClient_FailedCompletionSignal(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(w http.ResponseWriter, req parseRequest) {
		w.WriteHeader(http.StatusAccepted)
		go f.tracker.Resolve(domain.CompletionSignal{
			RequestID: req.RequestID,
			Status:    domain.CompletionFailed,
			Error:     "captcha",
		})
	}, time.Second, time.Second)

	outcome := f.client.Process(context.Background(), domain.NewJob("c", "q", "Ozon", 1))

	require.Equal(t, domain.OutcomeFailure, outcome.Kind)
	assert.Contains(t, outcome.Reason(), "captcha")
}

func TestClient_AcceptTimeout(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ parseRequest) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}, 50*time.Millisecond, time.Second)

	outcome := f.client.Process(context.Background(), domain.NewJob("c", "q", "Ozon", 1))

	assert.Equal(t, domain.OutcomeTimeout, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, domain.ErrWorkerTimeout)
}

func TestClient_CompletionTimeout(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ parseRequest) {
		w.WriteHeader(http.StatusAccepted)
	}, time.Second, 50*time.Millisecond)

	outcome := f.client.Process(context.Background(), domain.NewJob("c", "q", "Ozon", 1))

	assert.Equal(t, domain.OutcomeTimeout, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, domain.ErrWorkerTimeout)
	assert.Equal(t, 0, f.tracker.Pending())
}

func TestClient_UnreachableWorkerIsFailure(t *testing.T) {
	tracker := completion.NewTracker(testLogger())
	client := New(&Config{
		BaseURL:       "http://127.0.0.1:1",
		AcceptTimeout: time.Second,
		Tracker:       tracker,
		Logger:        testLogger(),
	})

	outcome := client.Process(context.Background(), domain.NewJob("c", "q", "Ozon", 1))

	assert.NotEqual(t, domain.OutcomeSuccess, outcome.Kind)
	assert.Error(t, outcome.Err)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`), "500"))
	assert.Equal(t, "busy", errorMessage([]byte(`{"message":"busy"}`), "500"))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n"), "500"))
	assert.Equal(t, "502 Bad Gateway", errorMessage(nil, "502 Bad Gateway"))
}
