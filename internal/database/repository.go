package database

import (
	"context"
)

// ProjectReader provides read-only access to stored projects
type ProjectReader interface {
	// GetProject retrieves a project by id, returns nil if not found
	GetProject(ctx context.Context, id string) (*Project, error)
	// ListProjects returns all projects ordered by creation time, then id
	ListProjects(ctx context.Context) ([]Project, error)
}

// ProjectWriter provides write access to stored projects
type ProjectWriter interface {
	ProjectReader

	// SaveProject inserts a new project
	SaveProject(ctx context.Context, p Project) error

	// DeleteProject removes a project, reporting whether it existed
	DeleteProject(ctx context.Context, id string) (bool, error)
}

// ProjectStore is a ProjectWriter that owns a backend connection.
type ProjectStore interface {
	ProjectWriter
	Close() error
}
