// Package repomanager provides a concrete RepositoryManager for the supported
// SQL dialects, wiring together repository constructors and database
// migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/server/migrations"
	"github.com/jeremy-quicklearner/clautod/internal/server/query"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/revocations"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/users"
)

// SQLRepositoryManager vends repositories bound to a DBTX for one dialect.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
	engine  *query.Engine
	timeout time.Duration
}

// NewSQLRepositoryManager constructs a manager whose repositories bound every
// store call by storeTimeout.
func NewSQLRepositoryManager(d dbx.Dialect, storeTimeout time.Duration) *SQLRepositoryManager {
	return &SQLRepositoryManager{dialect: d, engine: query.New(d), timeout: storeTimeout}
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db, m.engine, m.timeout)
}

// Revocations returns a revocations.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Revocations(db dbx.DBTX) revocations.Repository {
	return revocations.NewSQLRepository(db, m.dialect, m.timeout)
}

func (m *SQLRepositoryManager) TxOptions() *sql.TxOptions {
	return m.dialect.TxOptions()
}

// seams for testing goose calls
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseVersionContext = goose.GetDBVersionContext
)

func (m *SQLRepositoryManager) setupGoose() error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect(m.dialect.GooseDialect())
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := m.setupGoose(); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// CheckSchemaVersion returns the store's schema version and an error
// matching common.ErrStorageState when it differs from the expected one.
func (m *SQLRepositoryManager) CheckSchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := m.setupGoose(); err != nil {
		return 0, err
	}
	v, err := gooseVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if v != migrations.SchemaVersion {
		return v, fmt.Errorf("%w: schema version %d, expected %d", common.ErrStorageState, v, migrations.SchemaVersion)
	}
	return v, nil
}
