package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// failingStore fails every read it is asked for.
type failingStore struct {
	store.Store
	err error
}

func (s *failingStore) ListRuns(ctx context.Context, opts store.ListOptions) ([]domain.Run, error) {
	return nil, s.err
}

func (s *failingStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return nil, s.err
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRun stores a succeeded run with one record and one grant.
func seedRun(t *testing.T, s store.Store, network string) *domain.Run {
	t.Helper()
	ctx := context.Background()

	run := domain.NewRun("tunetrader", network)
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, run.Transition(domain.RunRunning))

	storage := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	app := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	now := time.Now().UTC()

	require.NoError(t, run.AddRecord(domain.DeploymentRecord{
		Step: 2, Unit: "ContractStorage", Kind: domain.KindContract,
		Address: storage, TxHash: common.HexToHash("0x01"), CreatedAt: now,
	}))
	require.NoError(t, run.AddRecord(domain.DeploymentRecord{
		Step: 3, Unit: "TuneTrader", Kind: domain.KindContract,
		Address: app, TxHash: common.HexToHash("0x02"), CreatedAt: now,
	}))
	require.NoError(t, run.AddGrant(domain.AuthorizationGrant{
		Step: 4, Storage: "ContractStorage", StorageAddress: storage,
		Grantee: "TuneTrader", GranteeAddress: app,
		Method: "authorizeAddress", TxHash: common.HexToHash("0x03"), CreatedAt: now,
	}))
	for i := range run.Records {
		require.NoError(t, s.CreateRecord(ctx, &run.Records[i]))
	}
	require.NoError(t, s.CreateGrant(ctx, &run.Grants[0]))

	require.NoError(t, run.Transition(domain.RunSucceeded))
	require.NoError(t, s.UpdateRun(ctx, run))
	return run
}

func doRequest(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h := NewHandler(Config{Store: setupTestStore(t)}).Routes()

	rec := doRequest(t, h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func TestReady(t *testing.T) {
	h := NewHandler(Config{Store: setupTestStore(t)}).Routes()

	rec := doRequest(t, h, "/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestReady_StoreFailure(t *testing.T) {
	h := NewHandler(Config{Store: &failingStore{err: errors.New("disk I/O error")}}).Routes()

	rec := doRequest(t, h, "/ready")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "failed", resp.Checks["database"])
}

// =============================================================================
// Run Tests
// =============================================================================

func TestListRuns(t *testing.T) {
	s := setupTestStore(t)
	run := seedRun(t, s, "memory")
	pending := domain.NewRun("tunetrader", "memory")
	require.NoError(t, s.CreateRun(context.Background(), pending))
	h := NewHandler(Config{Store: s}).Routes()

	rec := doRequest(t, h, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListRunsResponse](t, rec)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 100, resp.Limit)

	rec = doRequest(t, h, "/api/v1/runs?status=succeeded")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ListRunsResponse](t, rec)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, run.ID, resp.Runs[0].ID)
	assert.Equal(t, "succeeded", resp.Runs[0].Status)

	rec = doRequest(t, h, "/api/v1/runs?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ListRunsResponse](t, rec)
	assert.Len(t, resp.Runs, 1)
	assert.Equal(t, 2, resp.Total, "total counts every run, not the page")
	assert.Equal(t, 1, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
}

func TestListRuns_InvalidStatus(t *testing.T) {
	h := NewHandler(Config{Store: setupTestStore(t)}).Routes()

	rec := doRequest(t, h, "/api/v1/runs?status=exploded")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[ErrorResponse](t, rec).Code)
}

func TestListRuns_StoreFailure(t *testing.T) {
	h := NewHandler(Config{Store: &failingStore{err: errors.New("boom")}}).Routes()

	rec := doRequest(t, h, "/api/v1/runs")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, rec).Code)
}

func TestGetRun(t *testing.T) {
	s := setupTestStore(t)
	run := seedRun(t, s, "memory")
	h := NewHandler(Config{Store: s}).Routes()

	rec := doRequest(t, h, "/api/v1/runs/"+run.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RunResponse](t, rec)
	assert.Equal(t, run.ID, resp.ID)
	assert.Equal(t, domain.NoFailedStep, resp.FailedStep)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "ContractStorage", resp.Records[0].Unit)
	assert.Equal(t, run.Records[0].Address.Hex(), resp.Records[0].Address)
	require.Len(t, resp.Grants, 1)
	assert.Equal(t, "TuneTrader", resp.Grants[0].Grantee)
	assert.Equal(t, run.Records[1].Address.Hex(), resp.Grants[0].GranteeAddress)
}

func TestGetRun_NotFound(t *testing.T) {
	h := NewHandler(Config{Store: setupTestStore(t)}).Routes()

	rec := doRequest(t, h, "/api/v1/runs/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run_not_found", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Address Tests
// =============================================================================

func TestUnitAddress(t *testing.T) {
	s := setupTestStore(t)
	run := seedRun(t, s, "sepolia")
	h := NewHandler(Config{Store: s, Network: "sepolia"}).Routes()

	rec := doRequest(t, h, "/api/v1/units/ContractStorage/address")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AddressResponse](t, rec)
	assert.Equal(t, run.Records[0].Address.Hex(), resp.Address)
	assert.Equal(t, "sepolia", resp.Network)
	assert.Equal(t, run.ID, resp.RunID)

	rec = doRequest(t, h, "/api/v1/units/ContractStorage/address?network=mainnet")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unit_not_deployed", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "chainhost_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := NewHandler(Config{Store: setupTestStore(t), Gatherer: reg}).Routes()
	rec := doRequest(t, h, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "application/json", rec.Header().Get("Content-Type"))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chainhost_test_total 1")
}

func TestMetrics_NotMountedWithoutGatherer(t *testing.T) {
	h := NewHandler(Config{Store: setupTestStore(t)}).Routes()

	rec := doRequest(t, h, "/metrics")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
