package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/database/sqlstore"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

type dialect struct{}

func (dialect) Name() string { return "mysql" }

func (dialect) Placeholder(int) string { return "?" }

func (dialect) VectorValue(v []float32) any { return fingerprint.EncodeVector(v) }

func (dialect) VectorScanner() sqlstore.VectorScanner { return &sqlstore.BlobVector{} }

// NewPool creates a new MariaDB connection pool. The DSN uses the
// go-sql-driver format, e.g. user:pass@tcp(host:3306)/armarker.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	db, err := sqlstore.Open(dialect{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("MariaDB: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies all pending migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return sqlstore.Migrate(ctx, p.db, dialect{}, sub)
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Store is a MariaDB-backed database.ProjectStore.
type Store struct {
	*sqlstore.ProjectRepository
	pool *Pool
}

// Open connects to MariaDB, applies migrations and returns the project store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		ProjectRepository: sqlstore.NewProjectRepository(pool.db, dialect{}),
		pool:              pool,
	}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
