package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte on-chain identifier.
type Address = common.Address

// Hash is a 32-byte transaction hash.
type Hash = common.Hash

// =============================================================================
// Deployable Units
// =============================================================================

var ErrInvalidUnitKind = errors.New("invalid unit kind")

// UnitKind distinguishes libraries, which are linked into other units,
// from ordinary contracts.
type UnitKind string

const (
	KindLibrary  UnitKind = "library"
	KindContract UnitKind = "contract"
)

// ParseUnitKind parses a unit kind, defaulting to contract when empty.
func ParseUnitKind(s string) (UnitKind, error) {
	switch UnitKind(s) {
	case "", KindContract:
		return KindContract, nil
	case KindLibrary:
		return KindLibrary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnitKind, s)
	}
}

// =============================================================================
// Records
// =============================================================================

// DeploymentRecord associates a published unit with its address.
type DeploymentRecord struct {
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Unit      string    `json:"unit"`
	Kind      UnitKind  `json:"kind"`
	Address   Address   `json:"address"`
	TxHash    Hash      `json:"tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorizationGrant records that a grantee was given write access to a storage unit.
type AuthorizationGrant struct {
	RunID          string    `json:"run_id"`
	Step           int       `json:"step"`
	Storage        string    `json:"storage"`
	StorageAddress Address   `json:"storage_address"`
	Grantee        string    `json:"grantee"`
	GranteeAddress Address   `json:"grantee_address"`
	Method         string    `json:"method"`
	TxHash         Hash      `json:"tx_hash"`
	CreatedAt      time.Time `json:"created_at"`
}
