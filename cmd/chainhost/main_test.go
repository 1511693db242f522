package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/shell/store"
	"github.com/artpar/chainhost/internal/testutil/contracts"
)

// =============================================================================
// Test Helpers
// =============================================================================

// setupCLI points the database at a temp file and the artifacts at the
// test contracts.
func setupCLI(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("CHAINHOST_DATABASE_DSN", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("CHAINHOST_ARTIFACTS_DIR", contracts.WriteDir(t))
	t.Setenv("CHAINHOST_LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "chainhost dev (built unknown)\n", out)
}

func TestPlan_DefaultLayout(t *testing.T) {
	setupCLI(t)

	code, out, _ := runCLI(t, "plan", "--check")

	require.Equal(t, ExitSuccess, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "plan tunetrader (7 steps)", lines[0])
	assert.Contains(t, lines[1], "publish library SongsLib")
	assert.Contains(t, lines[2], "link SongsLib into TuneTrader")
	assert.Contains(t, lines[3], "publish ContractStorage()")
	assert.Contains(t, lines[4], "publish TuneTrader(@ContractStorage)")
	assert.Contains(t, lines[5], "authorize TuneTrader on ContractStorage.authorizeAddress")
	assert.Contains(t, lines[6], "publish TuneTraderExchange(@ContractStorage)")
	assert.Contains(t, lines[7], "authorize TuneTraderExchange on ContractStorage.authorizeAddress")
}

func TestPlan_YAMLFormat(t *testing.T) {
	setupCLI(t)

	code, out, _ := runCLI(t, "plan", "--format", "yaml")

	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "name: tunetrader")
	assert.Contains(t, out, "publish: SongsLib")
	assert.Contains(t, out, "grantee: TuneTraderExchange")
}

func TestPlan_Errors(t *testing.T) {
	setupCLI(t)

	code, _, stderr := runCLI(t, "plan", "--format", "xml")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "unknown format")

	bad := writeManifest(t, "steps:\n  - authorize: {storage: ContractStorage, grantee: TuneTrader}\n")
	code, _, stderr = runCLI(t, "plan", "--manifest", bad)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "LoadManifest")

	missing := writeManifest(t, "steps:\n  - publish: Ghost\n")
	code, _, stderr = runCLI(t, "plan", "--manifest", missing, "--check")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "Ghost")
}

func TestMigrate_DryRun(t *testing.T) {
	setupCLI(t)

	code, out, stderr := runCLI(t, "migrate", "--dry-run")
	require.Equal(t, ExitSuccess, code, stderr)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "succeeded", rep.Status)
	assert.Equal(t, "memory", rep.Network)
	assert.Nil(t, rep.FailedStep)
	require.Len(t, rep.Addresses, 4)
	require.Len(t, rep.Grants, 2)
	assert.Equal(t, rep.Addresses["TuneTrader"], rep.Grants[0].Address)
	assert.Equal(t, rep.Addresses["TuneTraderExchange"], rep.Grants[1].Address)

	code, out, _ = runCLI(t, "address", "ContractStorage", "--network", "memory")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, rep.Addresses["ContractStorage"]+"\n", out)

	code, out, _ = runCLI(t, "runs")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, rep.RunID)
	assert.Contains(t, out, "succeeded")

	code, out, _ = runCLI(t, "runs", rep.RunID)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `"failed_step": -1`)
	assert.Contains(t, out, `"grantee": "TuneTraderExchange"`)
}

func TestMigrate_RunFailure(t *testing.T) {
	setupCLI(t)

	// "lots" is not a uint256, which only shows once the call is packed.
	manifest := writeManifest(t, `
name: badfee
steps:
  - publish: ContractStorage
  - publish: TuneTraderExchange
    args: ["@ContractStorage"]
  - call:
      target: TuneTraderExchange
      method: setFee
      args: ["lots", "true"]
`)
	code, out, stderr := runCLI(t, "migrate", "--dry-run", "--manifest", manifest)

	assert.Equal(t, ExitRunFailed, code)
	assert.Contains(t, stderr, "step 2")

	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "failed", rep.Status)
	require.NotNil(t, rep.FailedStep)
	assert.Equal(t, 2, *rep.FailedStep)
	assert.Len(t, rep.Addresses, 2)
}

func TestMigrate_UnlinkedPlanRejectedBeforeDeploying(t *testing.T) {
	setupCLI(t)

	// SongsLib is published but never linked, so TuneTrader cannot be built.
	manifest := writeManifest(t, `
name: unlinked
steps:
  - publish: SongsLib
    kind: library
  - publish: ContractStorage
  - publish: TuneTrader
    args: ["@ContractStorage"]
`)
	code, out, stderr := runCLI(t, "migrate", "--dry-run", "--manifest", manifest)

	assert.Equal(t, ExitConfigError, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "SongsLib")

	code, out, _ = runCLI(t, "runs")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, 1, strings.Count(out, "\n"), "only the header: no run was recorded")
}

func TestStartFailure(t *testing.T) {
	var cmdErr *CommandError

	dbErr := fmt.Errorf("failed to create run: %w",
		store.NewStoreError("CreateRun", "run", "r1", "disk I/O error", errors.New("disk I/O error")))
	require.ErrorAs(t, startFailure(dbErr), &cmdErr)
	assert.Equal(t, ExitDatabaseError, cmdErr.ExitCode)

	planErr := fmt.Errorf("step 1: %w", artifact.ErrUnlinkedBytecode)
	require.ErrorAs(t, startFailure(planErr), &cmdErr)
	assert.Equal(t, ExitConfigError, cmdErr.ExitCode)
}

func TestMigrate_RPCRequiresKey(t *testing.T) {
	setupCLI(t)

	code, _, stderr := runCLI(t, "migrate")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "chain.private_key")
}

func TestAddress_NotDeployed(t *testing.T) {
	setupCLI(t)

	code, _, _ := runCLI(t, "address", "ContractStorage", "--network", "memory")

	assert.Equal(t, ExitConfigError, code)
}

func TestRuns_InvalidStatus(t *testing.T) {
	setupCLI(t)

	code, _, stderr := runCLI(t, "runs", "--status", "exploded")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "invalid run status")
}

func TestRuns_NotFound(t *testing.T) {
	setupCLI(t)

	code, _, _ := runCLI(t, "runs", "missing")

	assert.Equal(t, ExitConfigError, code)
}

func TestMigrate_ManifestVariables(t *testing.T) {
	setupCLI(t)

	manifest := writeManifest(t, `
name: fees
steps:
  - publish: ContractStorage
  - publish: TuneTraderExchange
    args: ["@ContractStorage"]
  - call:
      target: TuneTraderExchange
      method: setFee
      args: ["${FEE}", "${ENABLED:-true}"]
`)

	code, out, _ := runCLI(t, "plan", "--manifest", manifest, "--var", "FEE=250")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "call TuneTraderExchange.setFee(250, true)")

	code, _, stderr := runCLI(t, "plan", "--manifest", manifest)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "FEE")

	code, out, stderr = runCLI(t, "migrate", "--dry-run", "--manifest", manifest, "--var", "FEE=250")
	require.Equal(t, ExitSuccess, code, stderr)
	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "fees", rep.Plan)
	assert.Len(t, rep.Addresses, 2)
}
