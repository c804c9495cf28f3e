package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/database/memory"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

type recordingListener struct {
	mu    sync.Mutex
	calls [][]database.Project
}

func (l *recordingListener) ProjectsChanged(projects []database.Project) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, projects)
}

func (l *recordingListener) last() []database.Project {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return nil
	}
	return l.calls[len(l.calls)-1]
}

func validProject(name string) NewProject {
	return NewProject{
		Name:     name,
		Original: database.AssetRef{URL: "https://cdn/o.png", AssetID: "o", Kind: database.AssetImage},
		Marker:   database.AssetRef{URL: "https://cdn/m.png", AssetID: "m", Kind: database.AssetImage},
		Video:    database.AssetRef{URL: "https://cdn/v.mp4", AssetID: "v", Kind: database.AssetVideo},
		Features: fingerprint.MarkerFeatures{PHash: 1, Descriptor: []float32{1}},
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewProject)
		field  string
	}{
		{"empty name", func(p *NewProject) { p.Name = "   " }, "name"},
		{"long name", func(p *NewProject) { p.Name = strings.Repeat("é", 201) }, "name"},
		{"missing original", func(p *NewProject) { p.Original = database.AssetRef{} }, "originalImage"},
		{"missing video", func(p *NewProject) { p.Video = database.AssetRef{} }, "video"},
		{"video as marker", func(p *NewProject) { p.Marker.Kind = database.AssetVideo }, "markerImage"},
		{"image as video", func(p *NewProject) { p.Video.Kind = database.AssetImage }, "video"},
		{"no features", func(p *NewProject) { p.Features = fingerprint.MarkerFeatures{} }, "markerImage"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			r := New(store)
			np := validProject("poster")
			tc.mutate(&np)

			_, err := r.Create(context.Background(), np)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Create error = %v; want *ValidationError", err)
			}
			if vErr.Field != tc.field {
				t.Errorf("Field = %q; want %q", vErr.Field, tc.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("error should match ErrValidation")
			}
			if store.Len() != 0 {
				t.Errorf("store has %d projects after rejected create; want 0", store.Len())
			}
		})
	}
}

func TestCreateAssignsUniqueIDsInOrder(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStore())
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	seen := make(map[string]bool)
	for i := range 5 {
		p, err := r.Create(ctx, validProject(fmt.Sprintf("p%d", i)))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if p.ID == "" || seen[p.ID] {
			t.Fatalf("Create returned duplicate or empty id %q", p.ID)
		}
		seen[p.ID] = true
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i, p := range list {
		if p.Name != fmt.Sprintf("p%d", i) {
			t.Errorf("list[%d].Name = %q; want p%d", i, p.Name, i)
		}
		if i > 0 && !p.CreatedAt.After(list[i-1].CreatedAt) {
			t.Errorf("list[%d].CreatedAt not after its predecessor", i)
		}
	}
}

func TestCreateTrimsName(t *testing.T) {
	r := New(memory.NewStore())
	p, err := r.Create(context.Background(), validProject("  poster  "))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Name != "poster" {
		t.Errorf("Name = %q; want poster", p.Name)
	}
}

func TestIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStore())
	ids := []string{"a", "a", "b"}
	r.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	first, err := r.Create(ctx, validProject("one"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	second, err := r.Create(ctx, validProject("two"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if second.ID != "b" {
		t.Errorf("second id = %q; want b (a was already issued)", second.ID)
	}
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := New(store)

	p, err := r.Create(ctx, validProject("poster"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := r.Get(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("Get = %v, %v", got.ID, err)
	}

	if err := r.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v; want ErrNotFound", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d after failed delete; want 1", r.Len())
	}

	if err := r.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v; want ErrNotFound", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d projects; want 0", store.Len())
	}

	if err := r.Delete(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("Delete(blank) error = %v; want ErrValidation", err)
	}
}

func TestListenersSeeEveryChange(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStore())
	l := &recordingListener{}
	r.AddListener(l)

	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := l.last(); got == nil || len(got) != 0 {
		t.Fatalf("after Load listener saw %v; want empty set", got)
	}

	a, _ := r.Create(ctx, validProject("a"))
	if got := l.last(); len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("after create listener saw %d projects; want [a]", len(got))
	}

	b, _ := r.Create(ctx, validProject("b"))
	if err := r.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := l.last(); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("after delete listener saw %v; want [b]", got)
	}

	late := &recordingListener{}
	r.AddListener(late)
	if got := late.last(); len(got) != 1 {
		t.Errorf("late listener saw %d projects on registration; want 1", len(got))
	}
}

func TestStoreFailureLeavesRegistryUnchanged(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := New(store)
	l := &recordingListener{}
	r.AddListener(l)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	store.SaveError = errors.New("disk full")
	if _, err := r.Create(ctx, validProject("a")); err == nil {
		t.Fatal("Create should fail when the store fails")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d; want 0", r.Len())
	}
	if len(l.calls) != 1 {
		t.Errorf("listener notified %d times; want only the initial load", len(l.calls))
	}
}

func TestLoadRestoresPersistedProjects(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first := New(store)
	p, err := first.Create(ctx, validProject("persisted"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second := New(store)
	l := &recordingListener{}
	second.AddListener(l)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := l.last(); len(got) != 1 || got[0].ID != p.ID {
		t.Errorf("listener saw %v after Load; want the persisted project", got)
	}

	next, err := second.Create(ctx, validProject("next"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !next.CreatedAt.After(p.CreatedAt) {
		t.Error("new project should sort after the persisted one")
	}
}

func TestLazyLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := New(store).Create(ctx, validProject("existing")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := New(store).List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List returned %d projects without Load; want 1", len(list))
	}
}
