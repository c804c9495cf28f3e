// Package sqlite provides a single-file project store for small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/database/sqlstore"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) Placeholder(int) string { return "?" }

func (dialect) VectorValue(v []float32) any { return fingerprint.EncodeVector(v) }

func (dialect) VectorScanner() sqlstore.VectorScanner { return &sqlstore.BlobVector{} }

// Store is a SQLite-backed database.ProjectStore.
type Store struct {
	*sqlstore.ProjectRepository
	db *sql.DB
}

// Open opens the database file named by cfg.URL, applies migrations and
// returns the project store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	single := *cfg
	single.MaxOpenConns = 1
	single.MaxIdleConns = 1

	db, err := sqlstore.Open(dialect{}, &single)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	if err := sqlstore.Migrate(ctx, db, dialect{}, sub); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		ProjectRepository: sqlstore.NewProjectRepository(db, dialect{}),
		db:                db,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
