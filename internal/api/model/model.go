package model

import "time"

// Job is one row of the scrape job journal
type Job struct {
	JobID       string     `db:"job_id"`
	ClientKey   string     `db:"client_key"`
	Query       string     `db:"query"`
	Marketplace string     `db:"marketplace"`
	Page        int        `db:"page"`
	Status      string     `db:"status"`
	Error       *string    `db:"error"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
