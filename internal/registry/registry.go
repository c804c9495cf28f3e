// Package registry owns the canonical set of AR projects and notifies
// marker-set listeners after every change.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

// Listener receives the full project set after it changes. Calls happen
// while the registry holds its write lock and must not call back into it.
type Listener interface {
	ProjectsChanged(projects []database.Project)
}

// NewProject is the input to Create.
type NewProject struct {
	Name     string
	Original database.AssetRef
	Marker   database.AssetRef
	Video    database.AssetRef
	Features fingerprint.MarkerFeatures
}

// Registry is the single writer of project records.
type Registry struct {
	store database.ProjectWriter

	mu        sync.RWMutex
	loaded    bool
	projects  []database.Project // creation order
	issued    map[string]struct{}
	listeners []Listener
	lastAt    time.Time

	now   func() time.Time
	newID func() (string, error)
}

// New creates a registry over store. The persisted set is read on Load or
// lazily on first use.
func New(store database.ProjectWriter) *Registry {
	return &Registry{
		store:  store,
		issued: make(map[string]struct{}),
		now:    time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// AddListener registers l and immediately delivers the current set if the
// registry is loaded.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
	if r.loaded {
		l.ProjectsChanged(r.snapshot())
	}
}

// Load reads the persisted projects and publishes them to listeners.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	database.SortProjects(projects)

	r.projects = projects
	for _, p := range projects {
		r.issued[p.ID] = struct{}{}
		if p.CreatedAt.After(r.lastAt) {
			r.lastAt = p.CreatedAt
		}
	}
	r.loaded = true
	r.publish()

	slog.Info("project registry loaded", "projects", len(projects))
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	return r.loadLocked(ctx)
}

// Create validates np, assigns a fresh id and persists the project. The
// marker set seen by listeners includes the project before Create returns.
func (r *Registry) Create(ctx context.Context, np NewProject) (database.Project, error) {
	if err := validate(&np); err != nil {
		return database.Project{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		if err := r.loadLocked(ctx); err != nil {
			return database.Project{}, err
		}
	}

	id, err := r.freshID()
	if err != nil {
		return database.Project{}, err
	}

	p := database.Project{
		ID:            id,
		Name:          np.Name,
		OriginalImage: np.Original,
		MarkerImage:   np.Marker,
		Video:         np.Video,
		Features:      np.Features,
		CreatedAt:     r.nextCreatedAt(),
	}
	if err := r.store.SaveProject(ctx, p); err != nil {
		return database.Project{}, fmt.Errorf("save project: %w", err)
	}

	r.issued[id] = struct{}{}
	r.projects = append(r.projects, p)
	r.publish()

	slog.Info("project created", "id", p.ID, "name", p.Name, "projects", len(r.projects))
	return p, nil
}

// List returns all projects in creation order.
func (r *Registry) List(ctx context.Context) ([]database.Project, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(), nil
}

// Get returns a project by id or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (database.Project, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return database.Project{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.projects[i], nil
	}
	return database.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes a project. Missing ids yield ErrNotFound and leave the set
// unchanged.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return Invalid("id", "is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		if err := r.loadLocked(ctx); err != nil {
			return err
		}
	}

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	deleted, err := r.store.DeleteProject(ctx, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if !deleted {
		// Removed behind our back; drop the cached copy anyway.
		slog.Warn("project missing from store during delete", "id", id)
	}

	r.projects = append(r.projects[:i:i], r.projects[i+1:]...)
	r.publish()

	slog.Info("project deleted", "id", id, "projects", len(r.projects))
	return nil
}

// Len returns the number of projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

func (r *Registry) indexOf(id string) int {
	for i := range r.projects {
		if r.projects[i].ID == id {
			return i
		}
	}
	return -1
}

// freshID returns an id that was never issued by this registry.
func (r *Registry) freshID() (string, error) {
	for range 8 {
		id, err := r.newID()
		if err != nil {
			return "", fmt.Errorf("generate project id: %w", err)
		}
		if _, used := r.issued[id]; !used {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate project id: too many collisions")
}

// nextCreatedAt returns a timestamp strictly after every earlier project.
func (r *Registry) nextCreatedAt() time.Time {
	t := r.now().UTC()
	if !t.After(r.lastAt) {
		t = r.lastAt.Add(time.Nanosecond)
	}
	r.lastAt = t
	return t
}

func (r *Registry) snapshot() []database.Project {
	out := make([]database.Project, len(r.projects))
	copy(out, r.projects)
	return out
}

func (r *Registry) publish() {
	if len(r.listeners) == 0 {
		return
	}
	snap := r.snapshot()
	for _, l := range r.listeners {
		l.ProjectsChanged(snap)
	}
}
