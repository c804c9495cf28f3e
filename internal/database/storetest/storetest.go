// Package storetest holds behavioural tests shared by every database.ProjectStore backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

// SampleProject returns a fully populated project with distinct hash bits,
// including the high bit, so lossy integer handling shows up.
func SampleProject(id string, createdAt time.Time) database.Project {
	f := fingerprint.MarkerFeatures{
		PHash:      0xF0F0_0000_1234_5678,
		DHash:      0x8000_0000_0000_0001,
		Descriptor: make([]float32, fingerprint.DescriptorSize),
		Contrast:   42.5,
	}
	for i := range f.Grid {
		f.Grid[i] = uint64(i+1) << 58
	}
	for i := range f.Descriptor {
		f.Descriptor[i] = float32(i%7) / 7
	}

	return database.Project{
		ID:            id,
		Name:          "Project " + id,
		OriginalImage: database.AssetRef{URL: "https://cdn.example.com/" + id + ".png", AssetID: "orig-" + id, Kind: database.AssetImage},
		MarkerImage:   database.AssetRef{URL: "https://cdn.example.com/" + id + "-marker.png", AssetID: "marker-" + id, Kind: database.AssetImage},
		Video:         database.AssetRef{URL: "https://cdn.example.com/" + id + ".mp4", AssetID: "video-" + id, Kind: database.AssetVideo},
		Features:      f,
		CreatedAt:     createdAt,
	}
}

// Run exercises the ProjectStore contract against store, which must be empty.
func Run(t *testing.T, store database.ProjectStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SaveAndGet", func(t *testing.T) {
		want := SampleProject("p1", base)
		if err := store.SaveProject(ctx, want); err != nil {
			t.Fatalf("SaveProject failed: %v", err)
		}

		got, err := store.GetProject(ctx, "p1")
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected project, got nil")
		}
		if err := Equal(want, *got); err != nil {
			t.Error(err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.GetProject(ctx, "missing")
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing project, got %+v", got)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		if err := store.SaveProject(ctx, SampleProject("p1", base)); err == nil {
			t.Error("expected error saving a duplicate id")
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		for _, p := range []database.Project{
			SampleProject("p3", base.Add(time.Minute)),
			SampleProject("p0", base), // same instant as p1, sorts first by id
			SampleProject("p2", base.Add(time.Second)),
		} {
			if err := store.SaveProject(ctx, p); err != nil {
				t.Fatalf("SaveProject(%s) failed: %v", p.ID, err)
			}
		}

		list, err := store.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		want := []string{"p0", "p1", "p2", "p3"}
		if len(list) != len(want) {
			t.Fatalf("ListProjects returned %d projects; want %d", len(list), len(want))
		}
		for i, id := range want {
			if list[i].ID != id {
				t.Errorf("list[%d].ID = %q; want %q", i, list[i].ID, id)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		deleted, err := store.DeleteProject(ctx, "p2")
		if err != nil {
			t.Fatalf("DeleteProject failed: %v", err)
		}
		if !deleted {
			t.Error("expected DeleteProject to report an existing project")
		}

		deleted, err = store.DeleteProject(ctx, "p2")
		if err != nil {
			t.Fatalf("DeleteProject failed: %v", err)
		}
		if deleted {
			t.Error("expected second DeleteProject to report nothing deleted")
		}

		list, err := store.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		if len(list) != 3 {
			t.Errorf("ListProjects returned %d projects after delete; want 3", len(list))
		}
	})
}

// Equal compares the persisted fields of two projects.
func Equal(want, got database.Project) error {
	switch {
	case want.ID != got.ID, want.Name != got.Name:
		return fmt.Errorf("identity mismatch: got %s/%q, want %s/%q", got.ID, got.Name, want.ID, want.Name)
	case want.OriginalImage != got.OriginalImage:
		return fmt.Errorf("original image = %+v; want %+v", got.OriginalImage, want.OriginalImage)
	case want.MarkerImage != got.MarkerImage:
		return fmt.Errorf("marker image = %+v; want %+v", got.MarkerImage, want.MarkerImage)
	case want.Video != got.Video:
		return fmt.Errorf("video = %+v; want %+v", got.Video, want.Video)
	case !want.CreatedAt.Equal(got.CreatedAt):
		return fmt.Errorf("created at = %v; want %v", got.CreatedAt, want.CreatedAt)
	case want.Features.PHash != got.Features.PHash, want.Features.DHash != got.Features.DHash:
		return fmt.Errorf("hashes = %x/%x; want %x/%x",
			got.Features.PHash, got.Features.DHash, want.Features.PHash, want.Features.DHash)
	case want.Features.Grid != got.Features.Grid:
		return errors.New("grid mismatch")
	case want.Features.Contrast != got.Features.Contrast:
		return fmt.Errorf("contrast = %f; want %f", got.Features.Contrast, want.Features.Contrast)
	case len(want.Features.Descriptor) != len(got.Features.Descriptor):
		return fmt.Errorf("descriptor length = %d; want %d", len(got.Features.Descriptor), len(want.Features.Descriptor))
	}
	for i := range want.Features.Descriptor {
		if want.Features.Descriptor[i] != got.Features.Descriptor[i] {
			return fmt.Errorf("descriptor[%d] = %f; want %f", i, got.Features.Descriptor[i], want.Features.Descriptor[i])
		}
	}
	return nil
}
