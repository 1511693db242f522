package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// stopInit deploys a runtime of a single STOP.
	stopInit = "0x6001600c60003960016000f300"
	// revertInit deploys a runtime that always reverts.
	revertInit = "0x6005600c60003960056000f360006000fd"
)

// newSimulated starts a simulated chain that mines every few milliseconds.
func newSimulated(t *testing.T, cfg EthConfig) (*EthDeployer, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)

	balance := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	sim := simulated.NewBackend(types.GenesisAlloc{sender: {Balance: balance}})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		wg.Wait()
		sim.Close()
	})

	d, err := NewEthDeployer(context.Background(), sim.Client(), key, cfg, nil)
	require.NoError(t, err)
	return d, key
}

func TestEthDeployer_PublishAndCall(t *testing.T) {
	d, key := newSimulated(t, EthConfig{ReceiptTimeout: 30 * time.Second})
	ctx := context.Background()

	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), d.Address())

	r, err := d.Publish(ctx, "ContractStorage", hexutil.MustDecode(stopInit))
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(d.Address(), 0), r.ContractAddress)
	assert.NotZero(t, r.BlockNumber)

	cr, err := d.Call(ctx, r.ContractAddress, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, cr.ContractAddress)
	assert.NotEqual(t, r.TxHash, cr.TxHash)
}

func TestEthDeployer_CallWithoutCode(t *testing.T) {
	d, _ := newSimulated(t, EthConfig{ReceiptTimeout: 30 * time.Second})

	_, err := d.Call(context.Background(), common.HexToAddress("0x1234"), []byte{0x01})
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestEthDeployer_RevertedCall(t *testing.T) {
	tests := []struct {
		name string
		cfg  EthConfig
	}{
		{"estimated gas", EthConfig{ReceiptTimeout: 30 * time.Second}},
		{"fixed gas", EthConfig{GasLimit: 100_000, ReceiptTimeout: 30 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newSimulated(t, tt.cfg)
			ctx := context.Background()

			r, err := d.Publish(ctx, "Reverter", hexutil.MustDecode(revertInit))
			require.NoError(t, err)

			_, err = d.Call(ctx, r.ContractAddress, []byte{0x01})
			assert.ErrorIs(t, err, ErrTxReverted)
		})
	}
}

func TestEthDeployer_PublishEmptyCode(t *testing.T) {
	d, _ := newSimulated(t, EthConfig{})

	_, err := d.Publish(context.Background(), "Empty", nil)
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestParseKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	parsed, err := ParseKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)

	parsed, err = ParseKey(hexKey[2:])
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)

	_, err = ParseKey("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("0xnothex")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
