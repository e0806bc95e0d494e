package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job is one marketplace scrape belonging to one client's search.
// Jobs are immutable once created; the ID doubles as the worker request ID.
type Job struct {
	ID          string
	ClientKey   string
	Query       string
	Marketplace string
	Page        int
	EnqueuedAt  time.Time
}

// NewJob creates a job with a fresh request ID
func NewJob(clientKey, query, marketplace string, page int) Job {
	return Job{
		ID:          uuid.New().String(),
		ClientKey:   clientKey,
		Query:       query,
		Marketplace: marketplace,
		Page:        page,
		EnqueuedAt:  time.Now(),
	}
}

// OutcomeKind classifies how a job ended
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of processing a job
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Success reports a confirmed completion
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Failure reports a worker-side error
func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Timeout reports that acceptance or completion did not arrive in time
func Timeout(err error) Outcome {
	return Outcome{Kind: OutcomeTimeout, Err: err}
}

// JournalStatus maps the outcome to the status persisted in the job journal
func (o Outcome) JournalStatus() string {
	switch o.Kind {
	case OutcomeSuccess:
		return JobStatusCompleted
	case OutcomeTimeout:
		return JobStatusTimedOut
	default:
		return JobStatusFailed
	}
}

// Reason returns a printable failure reason, empty on success
func (o Outcome) Reason() string {
	if o.Err == nil {
		if o.Kind == OutcomeTimeout {
			return ErrWorkerTimeout.Error()
		}
		return ""
	}
	return o.Err.Error()
}

// CompletionSignal is the out-of-band confirmation the worker sends once a job is finished
type CompletionSignal struct {
	RequestID   string `json:"request_id"`
	ClientKey   string `json:"client_key"`
	Marketplace string `json:"marketplace"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}
