// Package sqlstore implements the project repository and migration runner
// shared by the SQL backends.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/ar-marker/internal/config"
)

// Dialect captures the differences between SQL backends.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string
	// Placeholder returns the bind parameter for the n-th argument (1-based).
	Placeholder(n int) string
	// VectorValue converts a descriptor into a bindable value.
	VectorValue(v []float32) any
	// VectorScanner returns a fresh destination for a descriptor column.
	VectorScanner() VectorScanner
}

// VectorScanner scans a descriptor column.
type VectorScanner interface {
	sql.Scanner
	Slice() []float32
}

// Open opens and pings a connection pool.
func Open(d Dialect, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open(d.Name(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
