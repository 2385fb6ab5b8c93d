package repomanager

import (
	"context"
	"database/sql"

	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/revocations"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	CheckSchemaVersion(ctx context.Context, db *sql.DB) (int64, error)
	Users(db dbx.DBTX) users.Repository
	Revocations(db dbx.DBTX) revocations.Repository
	TxOptions() *sql.TxOptions
}
