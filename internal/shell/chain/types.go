// Package chain provides the capability to publish contracts and send
// transactions to a deployment target.
package chain

import (
	"context"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// Deployer Interface
// =============================================================================

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash          domain.Hash
	ContractAddress domain.Address // zero for calls
	BlockNumber     uint64
	GasUsed         uint64
}

// Deployer publishes code and calls published contracts.
// Both methods block until the transaction is mined with a successful
// status; a failed status is reported as ErrTxReverted.
type Deployer interface {
	// Publish sends creation code (constructor arguments appended) and
	// returns the receipt carrying the new contract address.
	Publish(ctx context.Context, name string, code []byte) (Receipt, error)

	// Call sends ABI-encoded calldata to a published contract.
	Call(ctx context.Context, to domain.Address, data []byte) (Receipt, error)
}
