package store

import (
	"context"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deployment runs.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error) // includes records and grants
	ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error)
	CountRuns(ctx context.Context, status domain.RunStatus) (int, error) // empty status counts all

	// Deployment record operations
	CreateRecord(ctx context.Context, rec *domain.DeploymentRecord) error
	ListRecords(ctx context.Context, runID string) ([]domain.DeploymentRecord, error)
	LatestRecord(ctx context.Context, network, unit string) (*domain.DeploymentRecord, error)

	// Authorization grant operations
	CreateGrant(ctx context.Context, grant *domain.AuthorizationGrant) error
	ListGrants(ctx context.Context, runID string) ([]domain.AuthorizationGrant, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int

	// Status filters runs by status when set.
	Status domain.RunStatus
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
