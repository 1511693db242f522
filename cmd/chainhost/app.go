package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/core/deployment"
	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/core/manifest"
	"github.com/artpar/chainhost/internal/shell/artifacts"
	"github.com/artpar/chainhost/internal/shell/chain"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// Command Environment
// =============================================================================

// app is the loaded configuration and logger shared by commands.
type app struct {
	cfg    *Config
	logger *slog.Logger
}

func newApp(configPath string) (*app, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, &CommandError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	return &app{cfg: cfg, logger: SetupLogger(cfg)}, nil
}

// loadPlan reads the manifest at path, falling back to the configured path
// and then to the built-in layout, and expands vars in its arguments.
func (a *app) loadPlan(path string, vars map[string]string) (deployment.Plan, error) {
	if path == "" {
		path = a.cfg.Manifest.Path
	}

	m := manifest.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return deployment.Plan{}, &CommandError{Op: "LoadManifest", Err: err, ExitCode: ExitConfigError}
		}
		m, err = manifest.Parse(data)
		if err != nil {
			return deployment.Plan{}, &CommandError{Op: "LoadManifest", Err: fmt.Errorf("%s: %w", path, err), ExitCode: ExitConfigError}
		}
	}

	p, err := deployment.ExpandVariables(m.Plan, vars)
	if err != nil {
		return deployment.Plan{}, &CommandError{Op: "LoadManifest", Err: err, ExitCode: ExitConfigError}
	}
	return p, nil
}

func (a *app) loadArtifacts(dir string) (artifact.Set, error) {
	if dir == "" {
		dir = a.cfg.Artifacts.Dir
	}
	set, err := artifacts.LoadDir(dir)
	if err != nil {
		return nil, &CommandError{Op: "LoadArtifacts", Err: err, ExitCode: ExitConfigError}
	}
	a.logger.Debug("artifacts loaded", "dir", dir, "units", set.Names())
	return set, nil
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.NewSQLiteStore(a.cfg.Database.DSN)
	if err != nil {
		return nil, &CommandError{Op: "OpenStore", Err: err, ExitCode: ExitDatabaseError}
	}
	return s, nil
}

// openDeployer connects to the configured chain. Dry runs and the memory
// backend use an in-process ledger instead. The returned func releases the
// connection.
func (a *app) openDeployer(ctx context.Context, dryRun bool) (chain.Deployer, func(), error) {
	if dryRun || a.cfg.Chain.Backend == BackendMemory {
		sender := chain.DryRunSender
		if a.cfg.Chain.PrivateKey != "" {
			key, err := chain.ParseKey(a.cfg.Chain.PrivateKey)
			if err != nil {
				return nil, nil, &CommandError{Op: "OpenDeployer", Err: err, ExitCode: ExitConfigError}
			}
			sender = senderOf(key)
		}
		a.logger.Info("using in-memory ledger", "sender", sender.Hex())
		return chain.NewLedger(sender, a.logger), func() {}, nil
	}

	d, err := chain.Dial(ctx, a.cfg.Chain.RPCURL, a.cfg.Chain.PrivateKey, chain.EthConfig{
		GasLimit:       a.cfg.Chain.GasLimit,
		ReceiptTimeout: a.cfg.Chain.ReceiptTimeout,
	}, a.logger)
	if err != nil {
		code := ExitChainError
		if errors.Is(err, chain.ErrInvalidKey) {
			code = ExitConfigError
		}
		return nil, nil, &CommandError{Op: "OpenDeployer", Err: err, ExitCode: code}
	}
	a.logger.Info("connected to chain",
		"rpc_url", a.cfg.Chain.RPCURL,
		"network", a.cfg.Chain.Network,
		"sender", d.Address().Hex(),
	)
	return d, d.Close, nil
}

// pushMetrics sends gathered metrics to the configured Pushgateway.
// Failures are logged and otherwise ignored.
func (a *app) pushMetrics(reg prometheus.Gatherer, network string) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	err := push.New(url, a.cfg.Metrics.Job).
		Gatherer(reg).
		Grouping("network", network).
		Push()
	if err != nil {
		a.logger.Warn("failed to push metrics", "url", url, "error", err)
		return
	}
	a.logger.Debug("metrics pushed", "url", url)
}

func senderOf(key *ecdsa.PrivateKey) domain.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
