package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/model"
	"github.com/cuongbtq/market-bridge/internal/api/storage"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/cuongbtq/market-bridge/internal/notify"
	"github.com/cuongbtq/market-bridge/internal/search"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSearch struct {
	mu         sync.Mutex
	submitted  []search.SearchRequest
	statuses   [][2]string
	deliveries []search.DataDelivery
	submitErr  error
	deliverErr error
}

func (f *fakeSearch) Submit(_ context.Context, req search.SearchRequest) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	page := req.Page
	if page == 0 {
		page = domain.DefaultPage
	}
	jobs := make([]domain.Job, len(req.Marketplaces))
	for i, mp := range req.Marketplaces {
		jobs[i] = domain.NewJob(req.ClientKey, req.Query, mp, page)
	}
	return jobs, nil
}

func (f *fakeSearch) PushStatus(clientKey, message string) error {
	if clientKey == "" {
		return domain.NewValidationError("client key is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, [2]string{clientKey, message})
	return nil
}

func (f *fakeSearch) DeliverData(_ context.Context, d search.DataDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return f.deliverErr
}

type fakeResolver struct {
	signals []domain.CompletionSignal
	match   bool
}

func (f *fakeResolver) Resolve(signal domain.CompletionSignal) bool {
	f.signals = append(f.signals, signal)
	return f.match
}

type fakeQueues struct {
	pending    map[string]int
	processing map[string]bool
}

func (f *fakeQueues) Pending(clientKey string) int     { return f.pending[clientKey] }
func (f *fakeQueues) Processing(clientKey string) bool { return f.processing[clientKey] }

type fakeJobStore struct {
	jobs       []model.Job
	lastFilter storage.JobFilter
	listErr    error
}

func (f *fakeJobStore) GetJobByID(_ context.Context, jobID string) (*model.Job, error) {
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			return &f.jobs[i], nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (f *fakeJobStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]model.Job, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.jobs) > filter.PageSize+1 {
		return f.jobs[:filter.PageSize+1], nil
	}
	return f.jobs, nil
}

type fakeCleaner struct {
	olderThan time.Duration
	deleted   int
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return f.deleted, f.err
}

type testEnv struct {
	deps     *Dependencies
	search   *fakeSearch
	resolver *fakeResolver
	queues   *fakeQueues
	jobs     *fakeJobStore
	cleaner  *fakeCleaner
	registry *notify.Registry
	engine   *gin.Engine
}

func newTestEnv() *testEnv {
	env := &testEnv{
		search:   &fakeSearch{},
		resolver: &fakeResolver{},
		queues:   &fakeQueues{pending: map[string]int{}, processing: map[string]bool{}},
		jobs:     &fakeJobStore{},
		cleaner:  &fakeCleaner{},
		registry: notify.NewRegistry(testLogger()),
	}
	env.deps = &Dependencies{
		Logger:         testLogger(),
		Search:         env.search,
		Completions:    env.resolver,
		Queues:         env.queues,
		Channels:       env.registry,
		Jobs:           env.jobs,
		Images:         env.cleaner,
		ImageRetention: 24 * time.Hour,
		WebSocket: WebSocketSettings{
			WriteWait: time.Second,
			PongWait:  5 * time.Second,
		},
	}

	searchHandler := NewSearchHandler(env.deps)
	jobHandler := NewJobHandler(env.deps)
	queueHandler := NewQueueHandler(env.deps)
	streamHandler := NewStreamHandler(env.deps)

	r := gin.New()
	r.POST("/api/search", searchHandler.Search)
	r.POST("/api/status", searchHandler.Status)
	r.POST("/api/data", searchHandler.Data)
	r.POST("/api/cleanup", queueHandler.Cleanup)
	r.POST("/api/v1/jobs/complete", jobHandler.Complete)
	r.GET("/api/v1/jobs", jobHandler.ListJobs)
	r.GET("/api/v1/jobs/:job_id", jobHandler.GetJob)
	r.GET("/api/v1/queues/:client_key", queueHandler.QueueState)
	r.GET("/ws", streamHandler.Connect)
	env.engine = r

	return env
}

func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.5:51234"

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

var errBoom = errors.New("boom")
