package completion

import (
	"log/slog"
	"sync"

	"github.com/cuongbtq/market-bridge/internal/domain"
)

type pairKey struct {
	clientKey   string
	marketplace string
}

// Tracker correlates out-of-band completion signals from the scraping worker
// with the jobs waiting on them. Signals carrying a request ID match exactly;
// signals without one match the oldest waiter for the same client and marketplace.
type Tracker struct {
	mu     sync.Mutex
	byID   map[string]*Waiter
	byPair map[pairKey][]*Waiter
	logger *slog.Logger
}

// Waiter is a pending completion for one job
type Waiter struct {
	job     domain.Job
	ch      chan domain.CompletionSignal
	tracker *Tracker
}

// NewTracker creates an empty tracker
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		byID:   make(map[string]*Waiter),
		byPair: make(map[pairKey][]*Waiter),
		logger: logger,
	}
}

// Await registers interest in the completion of job. Register before the
// worker is contacted so an early signal is not lost.
func (t *Tracker) Await(job domain.Job) *Waiter {
	w := &Waiter{
		job:     job,
		ch:      make(chan domain.CompletionSignal, 1),
		tracker: t,
	}

	key := pairKey{clientKey: job.ClientKey, marketplace: job.Marketplace}

	t.mu.Lock()
	t.byID[job.ID] = w
	t.byPair[key] = append(t.byPair[key], w)
	t.mu.Unlock()

	return w
}

// Done delivers the completion signal once it arrives
func (w *Waiter) Done() <-chan domain.CompletionSignal {
	return w.ch
}

// Cancel stops waiting. Safe to call after the waiter was resolved.
func (w *Waiter) Cancel() {
	w.tracker.mu.Lock()
	w.tracker.remove(w)
	w.tracker.mu.Unlock()
}

// Resolve hands signal to the matching waiter and reports whether one was found
func (t *Tracker) Resolve(signal domain.CompletionSignal) bool {
	t.mu.Lock()

	var w *Waiter
	if signal.RequestID != "" {
		w = t.byID[signal.RequestID]
	} else {
		key := pairKey{clientKey: signal.ClientKey, marketplace: signal.Marketplace}
		if waiters := t.byPair[key]; len(waiters) > 0 {
			w = waiters[0]
		}
	}

	if w == nil {
		t.mu.Unlock()
		t.logger.Warn("Completion signal did not match any pending job",
			slog.String("request_id", signal.RequestID),
			slog.String("client_key", signal.ClientKey),
			slog.String("marketplace", signal.Marketplace),
		)
		return false
	}

	t.remove(w)
	t.mu.Unlock()

	w.ch <- signal

	t.logger.Debug("Completion signal matched",
		slog.String("job_id", w.job.ID),
		slog.String("status", signal.Status),
	)
	return true
}

// Pending returns the number of jobs awaiting completion
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// remove must be called with t.mu held
func (t *Tracker) remove(w *Waiter) {
	if current, ok := t.byID[w.job.ID]; !ok || current != w {
		return
	}
	delete(t.byID, w.job.ID)

	key := pairKey{clientKey: w.job.ClientKey, marketplace: w.job.Marketplace}
	waiters := t.byPair[key]
	for i, candidate := range waiters {
		if candidate == w {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(t.byPair, key)
	} else {
		t.byPair[key] = waiters
	}
}

// Validate checks that a signal is well formed
func Validate(signal domain.CompletionSignal) error {
	if signal.RequestID == "" && (signal.ClientKey == "" || signal.Marketplace == "") {
		return domain.NewValidationError("request_id or client_key with marketplace is required")
	}
	switch signal.Status {
	case domain.CompletionDone, domain.CompletionFailed:
		return nil
	default:
		return domain.NewValidationError("status must be %q or %q", domain.CompletionDone, domain.CompletionFailed)
	}
}
