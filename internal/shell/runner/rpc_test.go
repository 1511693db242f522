package runner

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/shell/chain"
)

// simulatedDeployer returns an EthDeployer on a simulated chain that mines
// every few milliseconds, together with its client.
func simulatedDeployer(t *testing.T) (*chain.EthDeployer, simulated.Client) {
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

	d, err := chain.NewEthDeployer(context.Background(), sim.Client(), key,
		chain.EthConfig{ReceiptTimeout: 30 * time.Second}, nil)
	require.NoError(t, err)
	return d, sim.Client()
}

func TestRun_DefaultPlanOnSimulatedChain(t *testing.T) {
	d, client := simulatedDeployer(t)
	ctx := context.Background()

	run, err := newTestRunner(t, nil, nil).Run(ctx, defaultPlan(t), d)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	require.Len(t, run.Records, 4)
	require.Len(t, run.Grants, 2)

	// The first authorization takes nonce 3.
	nonces := []uint64{0, 1, 2, 4}
	for i, rec := range run.Records {
		assert.Equal(t, crypto.CreateAddress(d.Address(), nonces[i]), rec.Address, rec.Unit)

		code, err := client.CodeAt(ctx, rec.Address, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, code, rec.Unit)
	}

	storage, _ := run.AddressOf("ContractStorage")
	for _, g := range run.Grants {
		assert.Equal(t, storage, g.StorageAddress)

		receipt, err := client.TransactionReceipt(ctx, g.TxHash)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	}
}
