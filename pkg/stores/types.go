package stores

import (
	"context"
	"time"
)

// Run is one persisted convergence run.
type Run struct {
	ID           string     `json:"id"`
	ManifestPath string     `json:"manifest_path"`
	PlanID       string     `json:"plan_id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Warnings     string     `json:"warnings"` // JSON array
	CreatedAt    time.Time  `json:"created_at"`
}

// Record is one persisted per-action outcome within a run.
type Record struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ActionID   string    `json:"action_id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Fact is one cached probe result. Facts expire so a later run never
// trusts stale host state.
type Fact struct {
	ID        string     `json:"id"`
	ActionID  string     `json:"action_id"`
	Verdict   string     `json:"verdict"`
	Detail    string     `json:"detail"`
	ProbedAt  time.Time  `json:"probed_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store is the persistence layer for run history and the fact cache.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id, status string, completedAt time.Time, warnings string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Record operations
	InsertRecord(ctx context.Context, record *Record) error
	ListRecordsByRun(ctx context.Context, runID string) ([]*Record, error)

	// Fact cache operations
	UpsertFact(ctx context.Context, fact *Fact) error
	GetFact(ctx context.Context, actionID string) (*Fact, error)
	DeleteExpiredFacts(ctx context.Context) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
