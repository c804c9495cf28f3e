package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/database/storetest"
)

var _ database.ProjectStore = (*Store)(nil)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, NewStore())
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	for i, id := range []string{"b", "a", "c"} {
		p := database.Project{ID: id, Name: "project " + id, CreatedAt: now.Add(time.Duration(i) * time.Second)}
		if err := s.SaveProject(ctx, p); err != nil {
			t.Fatalf("SaveProject(%s) failed: %v", id, err)
		}
	}

	if err := s.SaveProject(ctx, database.Project{ID: "a"}); err == nil {
		t.Error("SaveProject should reject a duplicate id")
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "b" || list[1].ID != "a" || list[2].ID != "c" {
		t.Errorf("ListProjects order = %v; want b, a, c", ids(list))
	}

	got, err := s.GetProject(ctx, "a")
	if err != nil || got == nil || got.Name != "project a" {
		t.Errorf("GetProject(a) = %v, %v", got, err)
	}
	missing, err := s.GetProject(ctx, "zzz")
	if err != nil || missing != nil {
		t.Errorf("GetProject(zzz) = %v, %v; want nil, nil", missing, err)
	}

	ok, err := s.DeleteProject(ctx, "a")
	if err != nil || !ok {
		t.Errorf("DeleteProject(a) = %v, %v; want true", ok, err)
	}
	ok, err = s.DeleteProject(ctx, "a")
	if err != nil || ok {
		t.Errorf("second DeleteProject(a) = %v, %v; want false", ok, err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d; want 2", s.Len())
	}
}

func TestStoreErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := NewStore()
	s.SaveError = boom
	s.ListError = boom

	if err := s.SaveProject(ctx, database.Project{ID: "x"}); !errors.Is(err, boom) {
		t.Errorf("SaveProject error = %v; want boom", err)
	}
	if _, err := s.ListProjects(ctx); !errors.Is(err, boom) {
		t.Errorf("ListProjects error = %v; want boom", err)
	}
}

func ids(projects []database.Project) []string {
	out := make([]string, len(projects))
	for i, p := range projects {
		out[i] = p.ID
	}
	return out
}
