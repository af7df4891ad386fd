// Package ledger keeps the local history of dataset loads.
package ledger

import (
	"context"
	"time"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunSucceeded   = "succeeded"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// Load statuses.
const (
	LoadLoaded  = "loaded"
	LoadFailed  = "failed"
	LoadSkipped = "skipped"
)

// Run is one invocation of a loading command.
type Run struct {
	ID         string
	Command    string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Key identifies what a file was loaded into.
type Key struct {
	Path       string
	Repository string
	Context    string
}

// LoadRecord is one upload attempt outcome.
type LoadRecord struct {
	RunID      string
	Path       string
	Repository string
	Context    string
	SHA256     string
	Size       int64
	Format     string
	Status     string
	Error      string
	Duration   time.Duration
	LoadedAt   time.Time
}

// Key returns the record's identity.
func (r LoadRecord) Key() Key {
	return Key{Path: r.Path, Repository: r.Repository, Context: r.Context}
}

// Store describes the persistence contract for load history.
type Store interface {
	BeginRun(ctx context.Context, command string) (Run, error)
	FinishRun(ctx context.Context, runID, status string) error
	RecordLoad(ctx context.Context, rec LoadRecord) error
	// LastLoad returns the most recent successful load for key.
	LastLoad(ctx context.Context, key Key) (LoadRecord, bool, error)
	// History lists the newest records first; limit <= 0 means all.
	History(ctx context.Context, limit int) ([]LoadRecord, error)
	// Forget drops the history of a repository whose statements were cleared.
	Forget(ctx context.Context, repository string) (int64, error)
	Close() error
}
