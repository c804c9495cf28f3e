package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/database/mariadb"
	"github.com/kozaktomas/ar-marker/internal/database/memory"
	"github.com/kozaktomas/ar-marker/internal/database/postgres"
	"github.com/kozaktomas/ar-marker/internal/database/sqlite"
	"github.com/kozaktomas/ar-marker/internal/matcher"
	"github.com/kozaktomas/ar-marker/internal/registry"
)

// services is the object graph shared by serve and the project commands.
type services struct {
	cfg      *config.Config
	store    database.ProjectStore
	registry *registry.Registry
	engine   *matcher.Engine
}

// openServices connects the configured store, loads the project set and
// attaches the matcher to the registry.
func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	engine, err := matcher.New(matcher.Options{
		Threshold:    cfg.Matching.Threshold,
		MaxFrameSize: cfg.Matching.MaxFrameSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	reg := registry.New(store)
	reg.AddListener(engine)
	if err := reg.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	return &services{cfg: cfg, store: store, registry: reg, engine: engine}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		fmt.Printf("Warning: failed to close database: %v\n", err)
	}
}

// openStore selects the project store named by DATABASE_DRIVER.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.ProjectStore, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver != "" && driver != "memory" && cfg.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	switch driver {
	case "", "memory":
		fmt.Println("Using in-memory project store (projects are lost on exit)")
		return memory.NewStore(), nil
	case "postgres", "postgresql":
		fmt.Println("Connecting to PostgreSQL database...")
		store, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return store, nil
	case "mariadb", "mysql":
		fmt.Println("Connecting to MariaDB database...")
		store, err := mariadb.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return store, nil
	case "sqlite":
		fmt.Printf("Opening SQLite database %s...\n", cfg.URL)
		store, err := sqlite.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q (want memory, postgres, mariadb or sqlite)", cfg.Driver)
	}
}
