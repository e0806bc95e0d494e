package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/model"
	"github.com/cuongbtq/market-bridge/internal/api/storage"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobHandler_Complete(t *testing.T) {
	t.Run("resolves pending job", func(t *testing.T) {
		env := newTestEnv()
		env.resolver.match = true

		w := env.do(http.MethodPost, "/api/v1/jobs/complete", map[string]any{
			"request_id":  "req-1",
			"client_key":  "alice",
			"marketplace": "Ozon",
			"status":      "done",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, env.resolver.signals, 1)
		assert.Equal(t, "req-1", env.resolver.signals[0].RequestID)
		assert.Equal(t, domain.CompletionDone, env.resolver.signals[0].Status)
	})

	t.Run("legacy ip and default status", func(t *testing.T) {
		env := newTestEnv()
		env.resolver.match = true

		w := env.do(http.MethodPost, "/api/v1/jobs/complete", map[string]any{
			"ip":          "10.0.0.9",
			"marketplace": "DNS",
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10.0.0.9", env.resolver.signals[0].ClientKey)
		assert.Equal(t, domain.CompletionDone, env.resolver.signals[0].Status)
	})

	t.Run("no matching job", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodPost, "/api/v1/jobs/complete", map[string]any{
			"request_id": "unknown",
			"status":     "failed",
			"error":      "captcha",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid status", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodPost, "/api/v1/jobs/complete", map[string]any{
			"request_id": "req-1",
			"status":     "maybe",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.resolver.signals)
	})

	t.Run("no correlation fields", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodPost, "/api/v1/jobs/complete", map[string]any{"status": "done"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func journalRows(n int) []model.Job {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]model.Job, n)
	for i := range rows {
		rows[i] = model.Job{
			JobID:       uuid.New().String(),
			ClientKey:   "alice",
			Query:       "iphone",
			Marketplace: fmt.Sprintf("MP%d", i),
			Page:        8,
			Status:      domain.JobStatusCompleted,
			CreatedAt:   base.Add(-time.Duration(i) * time.Minute),
			UpdatedAt:   base,
		}
	}
	return rows
}

func TestJobHandler_ListJobs(t *testing.T) {
	t.Run("returns next cursor when more rows exist", func(t *testing.T) {
		env := newTestEnv()
		env.jobs.jobs = journalRows(5)

		w := env.do(http.MethodGet, "/api/v1/jobs?client_key=alice&status=completed&page_size=2", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		jobs := body["jobs"].([]any)
		assert.Len(t, jobs, 2)
		require.NotEmpty(t, body["next_cursor"])

		assert.Equal(t, "alice", env.jobs.lastFilter.ClientKey)
		assert.Equal(t, domain.JobStatusCompleted, env.jobs.lastFilter.Status)
		assert.Equal(t, 2, env.jobs.lastFilter.PageSize)

		cursor, err := DecodeJobCursor(body["next_cursor"].(string))
		require.NoError(t, err)
		assert.Equal(t, env.jobs.jobs[1].JobID, cursor.JobID)
		assert.True(t, env.jobs.jobs[1].CreatedAt.Equal(cursor.CreatedAt))
	})

	t.Run("last page has no cursor", func(t *testing.T) {
		env := newTestEnv()
		env.jobs.jobs = journalRows(2)

		w := env.do(http.MethodGet, "/api/v1/jobs", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Len(t, body["jobs"], 2)
		assert.NotContains(t, body, "next_cursor")
		assert.Equal(t, defaultPageSize, env.jobs.lastFilter.PageSize)
	})

	t.Run("page size is capped", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodGet, "/api/v1/jobs?page_size=1000", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, maxPageSize, env.jobs.lastFilter.PageSize)
	})

	t.Run("forwards cursor", func(t *testing.T) {
		env := newTestEnv()
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cursor := EncodeJobCursor(&storage.JobCursor{CreatedAt: at, JobID: "job-9"})

		w := env.do(http.MethodGet, "/api/v1/jobs?cursor="+cursor, nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, env.jobs.lastFilter.Cursor)
		assert.Equal(t, "job-9", env.jobs.lastFilter.Cursor.JobID)
		assert.True(t, at.Equal(env.jobs.lastFilter.Cursor.CreatedAt))
	})

	t.Run("invalid cursor", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodGet, "/api/v1/jobs?cursor=bm90LWEtY3Vyc29y", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodGet, "/api/v1/jobs?status=sleeping", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv()
		env.jobs.listErr = errBoom

		w := env.do(http.MethodGet, "/api/v1/jobs", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	env := newTestEnv()
	env.jobs.jobs = journalRows(1)
	reason := "worker timed out"
	env.jobs.jobs[0].Status = domain.JobStatusTimedOut
	env.jobs.jobs[0].Error = &reason

	t.Run("found", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/"+env.jobs.jobs[0].JobID, nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, domain.JobStatusTimedOut, body["status"])
		assert.Equal(t, reason, body["error"])
		assert.NotContains(t, body, "started_at")
	})

	t.Run("not found", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobCursor(t *testing.T) {
	t.Run("empty cursor", func(t *testing.T) {
		cursor, err := DecodeJobCursor("")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := DecodeJobCursor("MTIzNDU=")
		assert.ErrorContains(t, err, "invalid cursor format")
	})
}
