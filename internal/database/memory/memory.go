// Package memory provides an in-process project store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/ar-marker/internal/database"
)

// Store is an in-memory implementation of database.ProjectStore.
type Store struct {
	mu       sync.RWMutex
	projects map[string]database.Project

	// Error injection
	GetError    error
	ListError   error
	SaveError   error
	DeleteError error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		projects: make(map[string]database.Project),
	}
}

// GetProject retrieves a project by id
func (s *Store) GetProject(ctx context.Context, id string) (*database.Project, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListProjects returns all projects in creation order
func (s *Store) ListProjects(ctx context.Context) ([]database.Project, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	out := make([]database.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	s.mu.RUnlock()

	database.SortProjects(out)
	return out, nil
}

// SaveProject inserts a project; ids must be unique
func (s *Store) SaveProject(ctx context.Context, p database.Project) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

// DeleteProject removes a project
func (s *Store) DeleteProject(ctx context.Context, id string) (bool, error) {
	if s.DeleteError != nil {
		return false, s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	delete(s.projects, id)
	return true, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored projects
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}
