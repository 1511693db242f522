package api

import "time"

// =============================================================================
// Response Types
// =============================================================================

// RunResponse is the response for run operations.
type RunResponse struct {
	ID         string           `json:"id"`
	Plan       string           `json:"plan"`
	Network    string           `json:"network"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	FailedStep int              `json:"failed_step"`
	Records    []RecordResponse `json:"records"`
	Grants     []GrantResponse  `json:"grants"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// RecordResponse is a published unit within a run.
type RecordResponse struct {
	Step    int    `json:"step"`
	Unit    string `json:"unit"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
	TxHash  string `json:"tx_hash"`
}

// GrantResponse is an authorization made within a run.
type GrantResponse struct {
	Step           int    `json:"step"`
	Storage        string `json:"storage"`
	StorageAddress string `json:"storage_address"`
	Grantee        string `json:"grantee"`
	GranteeAddress string `json:"grantee_address"`
	Method         string `json:"method"`
	TxHash         string `json:"tx_hash"`
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"` // all matching runs, not just this page
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// AddressResponse is the latest successful address of a unit on a network.
type AddressResponse struct {
	Unit    string `json:"unit"`
	Network string `json:"network"`
	Address string `json:"address"`
	RunID   string `json:"run_id"`
	TxHash  string `json:"tx_hash"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness check.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
