package chain

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// In-Memory Ledger
// =============================================================================

// DryRunSender is the ledger sender when no key is configured.
var DryRunSender = common.HexToAddress("0x00000000000000000000000000000000c4a1d00d")

// LedgerCall is a call recorded by the Ledger.
type LedgerCall struct {
	To     domain.Address
	Data   []byte
	TxHash domain.Hash
}

// Ledger is a Deployer that keeps state in memory. Contract addresses follow
// CREATE semantics for its sender, so successive runs never collide.
// Ledger is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	sender domain.Address
	nonce  uint64
	block  uint64
	code   map[domain.Address][]byte
	calls  []LedgerCall
	logger *slog.Logger
}

// NewLedger creates an empty ledger publishing from sender.
func NewLedger(sender domain.Address, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		sender: sender,
		code:   make(map[domain.Address][]byte),
		logger: logger,
	}
}

// Publish records code at the next CREATE address.
func (l *Ledger) Publish(ctx context.Context, name string, code []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, NewChainError("publish", name, err.Error(), err)
	}
	if len(code) == 0 {
		return Receipt{}, NewChainError("publish", name, "no creation code", ErrEmptyCode)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	addr := crypto.CreateAddress(l.sender, l.nonce)
	r := l.mine(nil, code)
	r.ContractAddress = addr
	l.code[addr] = bytes.Clone(code)

	l.logger.Debug("ledger publish", "unit", name, "address", addr.Hex(), "tx", r.TxHash.Hex())
	return r, nil
}

// Call records calldata sent to a published address.
func (l *Ledger) Call(ctx context.Context, to domain.Address, data []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, NewChainError("call", to.Hex(), err.Error(), err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.code[to]; !ok {
		return Receipt{}, NewChainError("call", to.Hex(), "target has no code", ErrNoCode)
	}

	r := l.mine(&to, data)
	l.calls = append(l.calls, LedgerCall{To: to, Data: bytes.Clone(data), TxHash: r.TxHash})

	l.logger.Debug("ledger call", "to", to.Hex(), "tx", r.TxHash.Hex())
	return r, nil
}

// mine builds the transaction hash for the next nonce and advances the ledger.
// Caller must hold l.mu.
func (l *Ledger) mine(to *domain.Address, data []byte) Receipt {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    l.nonce,
		To:       to,
		Value:    new(big.Int),
		GasPrice: new(big.Int),
		Data:     data,
	})
	l.nonce++
	l.block++
	return Receipt{TxHash: tx.Hash(), BlockNumber: l.block}
}

// Sender returns the address the ledger publishes from.
func (l *Ledger) Sender() domain.Address {
	return l.sender
}

// CodeAt returns the creation code published at addr, or nil.
func (l *Ledger) CodeAt(addr domain.Address) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return bytes.Clone(l.code[addr])
}

// Calls returns every recorded call in order.
func (l *Ledger) Calls() []LedgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerCall, len(l.calls))
	copy(out, l.calls)
	return out
}
