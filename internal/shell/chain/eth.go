package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/artpar/chainhost/internal/core/domain"
)

// =============================================================================
// RPC Deployer Implementation
// =============================================================================

// Backend is the subset of an Ethereum client the deployer needs.
// *ethclient.Client and the simulated backend's client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// EthConfig tunes transaction sending.
type EthConfig struct {
	// GasLimit is used for every transaction. Zero means estimate.
	GasLimit uint64
	// ReceiptTimeout bounds the wait for each receipt. Zero means no bound
	// beyond the caller's context.
	ReceiptTimeout time.Duration
}

// EthDeployer implements Deployer against an Ethereum JSON-RPC endpoint.
type EthDeployer struct {
	backend Backend
	auth    *bind.TransactOpts
	cfg     EthConfig
	logger  *slog.Logger
	close   func()
}

// NewEthDeployer creates a deployer signing with key on the backend's chain.
func NewEthDeployer(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, cfg EthConfig, logger *slog.Logger) (*EthDeployer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, NewChainError("dial", "", fmt.Sprintf("failed to read chain id: %v", err), ErrConnectionFailed)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, NewChainError("dial", "", err.Error(), ErrInvalidKey)
	}

	logger.Info("chain connected", "chain_id", chainID.String(), "sender", auth.From.Hex())
	return &EthDeployer{
		backend: backend,
		auth:    auth,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Dial connects to rpcURL and creates a deployer signing with hexKey.
func Dial(ctx context.Context, rpcURL, hexKey string, cfg EthConfig, logger *slog.Logger) (*EthDeployer, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, NewChainError("dial", rpcURL, err.Error(), ErrConnectionFailed)
	}

	d, err := NewEthDeployer(ctx, client, key, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	d.close = client.Close
	return d, nil
}

// ParseKey parses a hex private key, with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, NewChainError("parse key", "", "private key is required", ErrInvalidKey)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, NewChainError("parse key", "", err.Error(), ErrInvalidKey)
	}
	return key, nil
}

// Address returns the sender address.
func (d *EthDeployer) Address() domain.Address {
	return d.auth.From
}

// Close releases the RPC connection when the deployer owns it.
func (d *EthDeployer) Close() {
	if d.close != nil {
		d.close()
	}
}

// Publish sends creation code and waits for the contract address.
func (d *EthDeployer) Publish(ctx context.Context, name string, code []byte) (Receipt, error) {
	if len(code) == 0 {
		return Receipt{}, NewChainError("publish", name, "no creation code", ErrEmptyCode)
	}

	// The constructor arguments are already appended to code.
	addr, tx, _, err := bind.DeployContract(d.opts(ctx), abi.ABI{}, code, d.backend)
	if err != nil {
		return Receipt{}, NewChainError("publish", name, err.Error(), classify(err))
	}
	d.logger.Debug("publish sent", "unit", name, "tx", tx.Hash().Hex(), "address", addr.Hex())

	r, err := d.wait(ctx, "publish", name, tx)
	if err != nil {
		return r, err
	}
	if r.ContractAddress == (common.Address{}) {
		return r, NewChainError("publish", name, "tx "+r.TxHash.Hex(), ErrNoContract)
	}

	d.logger.Info("contract published",
		"unit", name,
		"address", r.ContractAddress.Hex(),
		"tx", r.TxHash.Hex(),
		"gas_used", r.GasUsed,
	)
	return r, nil
}

// Call sends calldata to a contract and waits for a successful receipt.
func (d *EthDeployer) Call(ctx context.Context, to domain.Address, data []byte) (Receipt, error) {
	target := to.Hex()

	code, err := d.backend.CodeAt(ctx, to, nil)
	if err != nil {
		return Receipt{}, NewChainError("call", target, err.Error(), classify(err))
	}
	if len(code) == 0 {
		return Receipt{}, NewChainError("call", target, "target has no code", ErrNoCode)
	}

	contract := bind.NewBoundContract(to, abi.ABI{}, d.backend, d.backend, d.backend)
	tx, err := contract.RawTransact(d.opts(ctx), data)
	if err != nil {
		return Receipt{}, NewChainError("call", target, err.Error(), classify(err))
	}
	d.logger.Debug("call sent", "to", target, "tx", tx.Hash().Hex())

	r, err := d.wait(ctx, "call", target, tx)
	if err != nil {
		return r, err
	}

	d.logger.Info("call mined", "to", target, "tx", r.TxHash.Hex(), "gas_used", r.GasUsed)
	return r, nil
}

func (d *EthDeployer) opts(ctx context.Context) *bind.TransactOpts {
	opts := *d.auth
	opts.Context = ctx
	opts.GasLimit = d.cfg.GasLimit
	return &opts
}

func (d *EthDeployer) wait(ctx context.Context, op, target string, tx *types.Transaction) (Receipt, error) {
	if d.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ReceiptTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Receipt{}, NewChainError(op, target, "no receipt for tx "+tx.Hash().Hex(), ErrTimeout)
		}
		return Receipt{}, NewChainError(op, target, err.Error(), err)
	}

	r := Receipt{
		TxHash:          receipt.TxHash,
		ContractAddress: receipt.ContractAddress,
		GasUsed:         receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		r.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return r, NewChainError(op, target, "status failed in tx "+r.TxHash.Hex(), ErrTxReverted)
	}
	return r, nil
}

// classify maps send errors onto package sentinels where one applies.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case strings.Contains(err.Error(), "execution reverted"):
		return ErrTxReverted
	default:
		return err
	}
}
