package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/database/sqlstore"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

type dialect struct{}

func (dialect) Name() string { return "postgres" }

func (dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (dialect) VectorValue(v []float32) any { return pgvector.NewVector(v) }

func (dialect) VectorScanner() sqlstore.VectorScanner { return &pgvector.Vector{} }

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	db, err := sqlstore.Open(dialect{}, cfg)
	if err != nil {
		return nil, err
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies all pending migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, p.db, dialect{}, migrations())
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

// Store is a PostgreSQL-backed database.ProjectStore.
type Store struct {
	*sqlstore.ProjectRepository
	pool *Pool
}

// Open connects to PostgreSQL, applies migrations and returns the project store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
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
