package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/market-bridge/internal/domain"
)

// Processor runs one job against the scraping worker
type Processor interface {
	Process(ctx context.Context, job domain.Job) domain.Outcome
}

// Notifier delivers events to a client, best effort
type Notifier interface {
	Push(clientKey string, event domain.Event)
}

// Journal records job lifecycle transitions
type Journal interface {
	RecordQueued(ctx context.Context, job domain.Job) error
	RecordStarted(ctx context.Context, job domain.Job) error
	RecordFinished(ctx context.Context, job domain.Job, outcome domain.Outcome) error
}

// journalBuffer bounds the journal writes waiting for the database
const journalBuffer = 1024

// Config holds dispatcher dependencies
type Config struct {
	Logger         *slog.Logger
	Processor      Processor
	Notifier       Notifier
	Journal        Journal
	JournalTimeout time.Duration
}

type journalEntry struct {
	stage string
	job   domain.Job
	write func(ctx context.Context) error
}

// queue is one client's FIFO. The head job stays in jobs while it is in flight.
type queue struct {
	jobs       []domain.Job
	processing bool
}

// Dispatcher runs each client's jobs strictly in order, one at a time,
// while different clients proceed independently.
type Dispatcher struct {
	logger         *slog.Logger
	processor      Processor
	notifier       Notifier
	journal        Journal
	journalTimeout time.Duration
	journalCh      chan journalEntry
	journalDone    chan struct{}
	journalOnce    sync.Once

	mu     sync.Mutex
	queues map[string]*queue
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher
func New(cfg *Config) *Dispatcher {
	journal := cfg.Journal
	if journal == nil {
		journal = noopJournal{}
	}

	journalTimeout := cfg.JournalTimeout
	if journalTimeout <= 0 {
		journalTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		logger:         cfg.Logger,
		processor:      cfg.Processor,
		notifier:       cfg.Notifier,
		journal:        journal,
		journalTimeout: journalTimeout,
		journalCh:      make(chan journalEntry, journalBuffer),
		journalDone:    make(chan struct{}),
		queues:         make(map[string]*queue),
		ctx:            ctx,
		cancel:         cancel,
	}
	go d.writeJournal()

	return d
}

// Enqueue appends job to its client's queue and starts draining it if the queue was idle.
// It never waits on the journal.
func (d *Dispatcher) Enqueue(job domain.Job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return domain.ErrDispatcherClosed
	}

	// queued before the drain can see the job, so the journal sees transitions in order
	d.tryRecord(journalEntry{stage: "queued", job: job, write: func(ctx context.Context) error {
		return d.journal.RecordQueued(ctx, job)
	}})

	q, ok := d.queues[job.ClientKey]
	if !ok {
		q = &queue{}
		d.queues[job.ClientKey] = q
	}
	q.jobs = append(q.jobs, job)

	start := !q.processing
	if start {
		q.processing = true
		d.wg.Add(1)
	}
	pending := len(q.jobs)
	d.mu.Unlock()

	d.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("client_key", job.ClientKey),
		slog.String("marketplace", job.Marketplace),
		slog.Int("pending", pending),
	)

	if start {
		go d.drain(job.ClientKey, q)
	}

	return nil
}

// drain processes the head of q until the queue is empty, then removes it.
// The emptiness check and the removal happen under the same lock Enqueue
// takes, so a job appended concurrently is never stranded.
func (d *Dispatcher) drain(clientKey string, q *queue) {
	defer d.wg.Done()

	d.logger.Debug("Queue processing started", slog.String("client_key", clientKey))

	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			q.processing = false
			delete(d.queues, clientKey)
			d.mu.Unlock()

			d.logger.Debug("Queue drained", slog.String("client_key", clientKey))
			return
		}
		job := q.jobs[0]
		d.mu.Unlock()

		d.run(job)

		d.mu.Lock()
		q.jobs[0] = domain.Job{}
		q.jobs = q.jobs[1:]
		d.mu.Unlock()
	}
}

// run executes a single job and reports its outcome
func (d *Dispatcher) run(job domain.Job) {
	logger := d.logger.With(
		slog.String("job_id", job.ID),
		slog.String("client_key", job.ClientKey),
		slog.String("marketplace", job.Marketplace),
	)

	logger.Info("Processing job")
	d.notifier.Push(job.ClientKey, domain.StatusEvent(fmt.Sprintf("%s: parsing started", job.Marketplace)))
	d.record(journalEntry{stage: "started", job: job, write: func(ctx context.Context) error {
		return d.journal.RecordStarted(ctx, job)
	}})

	start := time.Now()
	outcome := d.process(job)

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		logger.Info("Job completed successfully",
			slog.Duration("duration", time.Since(start)),
		)
		d.notifier.Push(job.ClientKey, domain.StatusEvent(fmt.Sprintf("%s: parsing finished", job.Marketplace)))
	default:
		logger.Warn("Job did not complete, dropping",
			slog.String("outcome", outcome.Kind.String()),
			slog.String("reason", outcome.Reason()),
			slog.Duration("duration", time.Since(start)),
		)
		d.notifier.Push(job.ClientKey, domain.ErrorEvent(fmt.Sprintf("%s: parsing failed - %s", job.Marketplace, outcome.Reason())))
	}

	d.record(journalEntry{stage: "finished", job: job, write: func(ctx context.Context) error {
		return d.journal.RecordFinished(ctx, job, outcome)
	}})
}

// process invokes the processor, turning a panic into a failure so the queue keeps moving
func (d *Dispatcher) process(job domain.Job) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Failure(fmt.Errorf("processor panic: %v", r))
		}
	}()
	return d.processor.Process(d.ctx, job)
}

// record hands a transition to the journal writer, waiting for buffer space
func (d *Dispatcher) record(entry journalEntry) {
	d.journalCh <- entry
}

// tryRecord hands a transition to the journal writer unless the buffer is full.
// The journal upserts later stages, so a dropped "queued" row is recovered.
func (d *Dispatcher) tryRecord(entry journalEntry) {
	select {
	case d.journalCh <- entry:
	default:
		d.logger.Warn("Journal backlog full, skipping transition",
			slog.String("stage", entry.stage),
			slog.String("job_id", entry.job.ID),
		)
	}
}

// writeJournal applies transitions one at a time in the order they were recorded
func (d *Dispatcher) writeJournal() {
	defer close(d.journalDone)

	for entry := range d.journalCh {
		ctx, cancel := context.WithTimeout(context.Background(), d.journalTimeout)
		err := entry.write(ctx)
		cancel()

		if err != nil {
			d.logger.Warn("Failed to record job transition",
				slog.String("stage", entry.stage),
				slog.String("job_id", entry.job.ID),
				slog.Any("error", err),
			)
		}
	}
}

// Pending returns the number of jobs queued for clientKey, including the one in flight
func (d *Dispatcher) Pending(clientKey string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[clientKey]; ok {
		return len(q.jobs)
	}
	return 0
}

// Processing reports whether clientKey has a job in flight
func (d *Dispatcher) Processing(clientKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[clientKey]
	return ok && q.processing
}

// Idle reports whether clientKey has no retained queue state
func (d *Dispatcher) Idle(clientKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.queues[clientKey]
	return !ok
}

// Clients returns the keys of all clients with a live queue, sorted
func (d *Dispatcher) Clients() []string {
	d.mu.Lock()
	keys := make([]string, 0, len(d.queues))
	for k := range d.queues {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Shutdown stops accepting jobs, cancels in-flight work and waits for every
// queue to drain and the journal to be flushed, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Stopping dispatcher...")
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.closeJournal()
		<-d.journalDone
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// closeJournal stops the writer once nothing can record anymore
func (d *Dispatcher) closeJournal() {
	d.journalOnce.Do(func() { close(d.journalCh) })
}

type noopJournal struct{}

func (noopJournal) RecordQueued(context.Context, domain.Job) error                   { return nil }
func (noopJournal) RecordStarted(context.Context, domain.Job) error                  { return nil }
func (noopJournal) RecordFinished(context.Context, domain.Job, domain.Outcome) error { return nil }
