package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRunStatus  = errors.New("invalid run status")
	ErrZeroAddress       = errors.New("zero address is not a deployment result")
	ErrDuplicateRecord   = errors.New("unit already has a deployment record in this run")
	ErrDuplicateGrant    = errors.New("grantee already authorized on this storage in this run")
)

// =============================================================================
// Run Status
// =============================================================================

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// NoFailedStep marks a run that has not failed at any step.
const NoFailedStep = -1

// =============================================================================
// Run
// =============================================================================

// Run is one execution of a deployment plan against a deployer.
// Records and grants accumulate in step order and are never rewritten.
type Run struct {
	ID         string               `json:"id"`
	Plan       string               `json:"plan"`
	Network    string               `json:"network"`
	Status     RunStatus            `json:"status"`
	Error      string               `json:"error,omitempty"`
	FailedStep int                  `json:"failed_step"`
	Records    []DeploymentRecord   `json:"records"`
	Grants     []AuthorizationGrant `json:"grants"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// NewRun creates a pending run for the named plan.
func NewRun(plan, network string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:         uuid.New().String(),
		Plan:       plan,
		Network:    network,
		Status:     RunPending,
		FailedStep: NoFailedStep,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the run to a new status.
func (r *Run) Transition(to RunStatus) error {
	if err := ValidateRunTransition(r.Status, to); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now

	switch to {
	case RunRunning:
		r.StartedAt = &now
	case RunSucceeded, RunFailed:
		r.FinishedAt = &now
	}
	return nil
}

// Fail marks the run failed at the given step index.
func (r *Run) Fail(step int, message string) error {
	if err := r.Transition(RunFailed); err != nil {
		return err
	}
	r.FailedStep = step
	r.Error = message
	return nil
}

// AddRecord appends a deployment record. A unit is published at most once per run.
func (r *Run) AddRecord(rec DeploymentRecord) error {
	if rec.Address == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrZeroAddress, rec.Unit)
	}
	if _, ok := r.AddressOf(rec.Unit); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.Unit)
	}
	rec.RunID = r.ID
	r.Records = append(r.Records, rec)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AddGrant appends an authorization grant. A grantee is authorized at most
// once per storage address per run.
func (r *Run) AddGrant(g AuthorizationGrant) error {
	for _, existing := range r.Grants {
		if existing.StorageAddress == g.StorageAddress && existing.GranteeAddress == g.GranteeAddress {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateGrant, g.Grantee, g.Storage)
		}
	}
	g.RunID = r.ID
	r.Grants = append(r.Grants, g)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AddressOf returns the address recorded for a unit in this run.
func (r *Run) AddressOf(unit string) (Address, bool) {
	for _, rec := range r.Records {
		if rec.Unit == unit {
			return rec.Address, true
		}
	}
	return Address{}, false
}

// Addresses returns unit name -> hex address for every record in the run.
func (r *Run) Addresses() map[string]string {
	out := make(map[string]string, len(r.Records))
	for _, rec := range r.Records {
		out[rec.Unit] = rec.Address.Hex()
	}
	return out
}

// =============================================================================
// State Machine
// =============================================================================

var validRunTransitions = map[RunStatus][]RunStatus{
	RunPending:   {RunRunning, RunFailed},
	RunRunning:   {RunSucceeded, RunFailed},
	RunSucceeded: {},
	RunFailed:    {},
}

// ValidateRunTransition checks if a run status transition is valid.
func ValidateRunTransition(from, to RunStatus) error {
	allowed, exists := validRunTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ParseRunStatus parses a run status name.
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(s)
	if _, ok := validRunTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRunStatus, s)
	}
	return status, nil
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s RunStatus) IsTerminal() bool {
	return len(validRunTransitions[s]) == 0
}
