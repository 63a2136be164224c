package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/randalmurphal/tc/internal/db/driver"
)

// StoreDir is the per-project state directory.
const StoreDir = ".tc"

// StoreFile is the database filename inside StoreDir.
const StoreFile = "tc.db"

// StorePath returns the database path for a project directory.
func StorePath(projectDir string) string {
	return filepath.Join(projectDir, StoreDir, StoreFile)
}

// TxRunner provides a transactional execution interface so multi-table
// operations stay atomic.
type TxRunner interface {
	// RunInTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// TxOps provides database operations within a transaction. The context is
// captured at Begin time and used for every operation, so cancellation
// propagates through the whole transaction.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
	ctx     context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Context returns the context associated with this transaction.
func (t *TxOps) Context() context.Context {
	return t.ctx
}

// Dialect returns the database dialect.
func (t *TxOps) Dialect() driver.Dialect {
	return t.dialect
}

// Store exposes the repository operations over one project database.
type Store struct {
	*DB
}

// OpenStore opens the project store at {projectDir}/.tc/tc.db using SQLite
// and applies pending migrations.
func OpenStore(projectDir string) (*Store, error) {
	d, err := Open(StorePath(projectDir))
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{DB: d}, nil
}

// OpenStoreWithDialect opens the store with a specific dialect. For SQLite,
// dsn is the file path; for PostgreSQL, the connection string.
func OpenStoreWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	d, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{DB: d}, nil
}

// OpenStoreInMemory opens an isolated in-memory store, migrated and ready.
func OpenStoreInMemory() (*Store, error) {
	d, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{DB: d}, nil
}

// RunInTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back, otherwise committed.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txOps := &TxOps{
		tx:      tx,
		dialect: s.Dialect(),
		ctx:     ctx,
	}

	if err := fn(txOps); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ensure Store implements TxRunner.
var _ TxRunner = (*Store)(nil)
