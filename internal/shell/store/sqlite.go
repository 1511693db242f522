package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/chainhost/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

type runRow struct {
	ID           string  `db:"id"`
	Plan         string  `db:"plan"`
	Network      string  `db:"network"`
	Status       string  `db:"status"`
	ErrorMessage string  `db:"error_message"`
	FailedStep   int     `db:"failed_step"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
	StartedAt    *string `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
}

type recordRow struct {
	RunID     string `db:"run_id"`
	Step      int    `db:"step"`
	Unit      string `db:"unit"`
	Kind      string `db:"kind"`
	Address   string `db:"address"`
	TxHash    string `db:"tx_hash"`
	CreatedAt string `db:"created_at"`
}

type grantRow struct {
	RunID          string `db:"run_id"`
	Step           int    `db:"step"`
	Storage        string `db:"storage"`
	StorageAddress string `db:"storage_address"`
	Grantee        string `db:"grantee"`
	GranteeAddress string `db:"grantee_address"`
	Method         string `db:"method"`
	TxHash         string `db:"tx_hash"`
	CreatedAt      string `db:"created_at"`
}

// =============================================================================
// Store Operations
// =============================================================================

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.db, opts)
}

func (s *SQLiteStore) CountRuns(ctx context.Context, status domain.RunStatus) (int, error) {
	return countRuns(ctx, s.db, status)
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *domain.DeploymentRecord) error {
	return createRecord(ctx, s.db, rec)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]domain.DeploymentRecord, error) {
	return listRecords(ctx, s.db, runID)
}

func (s *SQLiteStore) LatestRecord(ctx context.Context, network, unit string) (*domain.DeploymentRecord, error) {
	return latestRecord(ctx, s.db, network, unit)
}

func (s *SQLiteStore) CreateGrant(ctx context.Context, grant *domain.AuthorizationGrant) error {
	return createGrant(ctx, s.db, grant)
}

func (s *SQLiteStore) ListGrants(ctx context.Context, runID string) ([]domain.AuthorizationGrant, error) {
	return listGrants(ctx, s.db, runID)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CountRuns(ctx context.Context, status domain.RunStatus) (int, error) {
	return countRuns(ctx, s.tx, status)
}

func (s *txSQLiteStore) CreateRecord(ctx context.Context, rec *domain.DeploymentRecord) error {
	return createRecord(ctx, s.tx, rec)
}

func (s *txSQLiteStore) ListRecords(ctx context.Context, runID string) ([]domain.DeploymentRecord, error) {
	return listRecords(ctx, s.tx, runID)
}

func (s *txSQLiteStore) LatestRecord(ctx context.Context, network, unit string) (*domain.DeploymentRecord, error) {
	return latestRecord(ctx, s.tx, network, unit)
}

func (s *txSQLiteStore) CreateGrant(ctx context.Context, grant *domain.AuthorizationGrant) error {
	return createGrant(ctx, s.tx, grant)
}

func (s *txSQLiteStore) ListGrants(ctx context.Context, runID string) ([]domain.AuthorizationGrant, error) {
	return listGrants(ctx, s.tx, runID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	query := `
		INSERT INTO runs (
			id, plan, network, status, error_message, failed_step,
			created_at, updated_at, started_at, finished_at
		) VALUES (
			:id, :plan, :network, :status, :error_message, :failed_step,
			:created_at, :updated_at, :started_at, :finished_at
		)`

	row := map[string]any{
		"id":            run.ID,
		"plan":          run.Plan,
		"network":       run.Network,
		"status":        string(run.Status),
		"error_message": run.Error,
		"failed_step":   run.FailedStep,
		"created_at":    run.CreatedAt.Format(time.RFC3339),
		"updated_at":    run.UpdatedAt.Format(time.RFC3339),
		"started_at":    formatOptionalTime(run.StartedAt),
		"finished_at":   formatOptionalTime(run.FinishedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}

	return nil
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	query := `
		UPDATE runs SET
			status = :status,
			error_message = :error_message,
			failed_step = :failed_step,
			updated_at = :updated_at,
			started_at = :started_at,
			finished_at = :finished_at
		WHERE id = :id`

	row := map[string]any{
		"id":            run.ID,
		"status":        string(run.Status),
		"error_message": run.Error,
		"failed_step":   run.FailedStep,
		"updated_at":    run.UpdatedAt.Format(time.RFC3339),
		"started_at":    formatOptionalTime(run.StartedAt),
		"finished_at":   formatOptionalTime(run.FinishedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}

	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	run := rowToRun(&row)

	run.Records, err = listRecords(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	run.Grants, err = listGrants(ctx, exec, id)
	if err != nil {
		return nil, err
	}

	return run, nil
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args := []any{opts.Limit, opts.Offset}
	if opts.Status != "" {
		query = `SELECT * FROM runs WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
		args = append([]any{string(opts.Status)}, args...)
	}

	var rows []runRow
	err := exec.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, *rowToRun(&row))
	}

	return runs, nil
}

func countRuns(ctx context.Context, exec executor, status domain.RunStatus) (int, error) {
	query := `SELECT COUNT(*) FROM runs`
	var args []any
	if status != "" {
		query = `SELECT COUNT(*) FROM runs WHERE status = ?`
		args = append(args, string(status))
	}

	var n int
	if err := exec.GetContext(ctx, &n, query, args...); err != nil {
		return 0, NewStoreError("CountRuns", "run", "", err.Error(), err)
	}
	return n, nil
}

func createRecord(ctx context.Context, exec executor, rec *domain.DeploymentRecord) error {
	query := `
		INSERT INTO deployment_records (
			run_id, step, unit, kind, address, tx_hash, created_at
		) VALUES (
			:run_id, :step, :unit, :kind, :address, :tx_hash, :created_at
		)`

	row := map[string]any{
		"run_id":     rec.RunID,
		"step":       rec.Step,
		"unit":       rec.Unit,
		"kind":       string(rec.Kind),
		"address":    rec.Address.Hex(),
		"tx_hash":    rec.TxHash.Hex(),
		"created_at": rec.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployment_records") {
			return NewStoreError("CreateRecord", "record", rec.Unit, "unit already recorded in this run", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateRecord", "record", rec.Unit, "run not found", ErrForeignKey)
		}
		return NewStoreError("CreateRecord", "record", rec.Unit, err.Error(), err)
	}

	return nil
}

func listRecords(ctx context.Context, exec executor, runID string) ([]domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE run_id = ? ORDER BY step ASC`

	var rows []recordRow
	err := exec.SelectContext(ctx, &rows, query, runID)
	if err != nil {
		return nil, NewStoreError("ListRecords", "record", runID, err.Error(), err)
	}

	records := make([]domain.DeploymentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, nil
}

func latestRecord(ctx context.Context, exec executor, network, unit string) (*domain.DeploymentRecord, error) {
	query := `
		SELECT dr.* FROM deployment_records dr
		JOIN runs r ON r.id = dr.run_id
		WHERE r.network = ? AND r.status = ? AND dr.unit = ?
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT 1`

	var row recordRow
	err := exec.GetContext(ctx, &row, query, network, string(domain.RunSucceeded), unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestRecord", "record", unit, "no successful deployment on "+network, ErrNotFound)
		}
		return nil, NewStoreError("LatestRecord", "record", unit, err.Error(), err)
	}

	return rowToRecord(&row)
}

func createGrant(ctx context.Context, exec executor, grant *domain.AuthorizationGrant) error {
	query := `
		INSERT INTO authorization_grants (
			run_id, step, storage, storage_address, grantee, grantee_address,
			method, tx_hash, created_at
		) VALUES (
			:run_id, :step, :storage, :storage_address, :grantee, :grantee_address,
			:method, :tx_hash, :created_at
		)`

	id := grant.Grantee + "@" + grant.Storage
	row := map[string]any{
		"run_id":          grant.RunID,
		"step":            grant.Step,
		"storage":         grant.Storage,
		"storage_address": grant.StorageAddress.Hex(),
		"grantee":         grant.Grantee,
		"grantee_address": grant.GranteeAddress.Hex(),
		"method":          grant.Method,
		"tx_hash":         grant.TxHash.Hex(),
		"created_at":      grant.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: authorization_grants") {
			return NewStoreError("CreateGrant", "grant", id, "grantee already authorized in this run", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateGrant", "grant", id, "run not found", ErrForeignKey)
		}
		return NewStoreError("CreateGrant", "grant", id, err.Error(), err)
	}

	return nil
}

func listGrants(ctx context.Context, exec executor, runID string) ([]domain.AuthorizationGrant, error) {
	query := `SELECT * FROM authorization_grants WHERE run_id = ? ORDER BY step ASC`

	var rows []grantRow
	err := exec.SelectContext(ctx, &rows, query, runID)
	if err != nil {
		return nil, NewStoreError("ListGrants", "grant", runID, err.Error(), err)
	}

	grants := make([]domain.AuthorizationGrant, 0, len(rows))
	for _, row := range rows {
		grant, err := rowToGrant(&row)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *grant)
	}

	return grants, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

// rowToRun converts a database row to a domain.Run without records or grants.
func rowToRun(row *runRow) *domain.Run {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &domain.Run{
		ID:         row.ID,
		Plan:       row.Plan,
		Network:    row.Network,
		Status:     domain.RunStatus(row.Status),
		Error:      row.ErrorMessage,
		FailedStep: row.FailedStep,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		StartedAt:  parseOptionalTime(row.StartedAt),
		FinishedAt: parseOptionalTime(row.FinishedAt),
	}
}

// rowToRecord converts a database row to a domain.DeploymentRecord.
func rowToRecord(row *recordRow) (*domain.DeploymentRecord, error) {
	addr, err := parseAddress(row.Address)
	if err != nil {
		return nil, NewStoreError("rowToRecord", "record", row.Unit, err.Error(), ErrInvalidData)
	}
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.DeploymentRecord{
		RunID:     row.RunID,
		Step:      row.Step,
		Unit:      row.Unit,
		Kind:      domain.UnitKind(row.Kind),
		Address:   addr,
		TxHash:    common.HexToHash(row.TxHash),
		CreatedAt: createdAt,
	}, nil
}

// rowToGrant converts a database row to a domain.AuthorizationGrant.
func rowToGrant(row *grantRow) (*domain.AuthorizationGrant, error) {
	storage, err := parseAddress(row.StorageAddress)
	if err != nil {
		return nil, NewStoreError("rowToGrant", "grant", row.Storage, err.Error(), ErrInvalidData)
	}
	grantee, err := parseAddress(row.GranteeAddress)
	if err != nil {
		return nil, NewStoreError("rowToGrant", "grant", row.Grantee, err.Error(), ErrInvalidData)
	}
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.AuthorizationGrant{
		RunID:          row.RunID,
		Step:           row.Step,
		Storage:        row.Storage,
		StorageAddress: storage,
		Grantee:        row.Grantee,
		GranteeAddress: grantee,
		Method:         row.Method,
		TxHash:         common.HexToHash(row.TxHash),
		CreatedAt:      createdAt,
	}, nil
}

func parseAddress(s string) (domain.Address, error) {
	if !common.IsHexAddress(s) {
		return domain.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
