package database

import (
	"sort"
	"time"

	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

// AssetKind tags an uploaded asset.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// AssetRef points at an asset hosted by the asset store.
type AssetRef struct {
	URL     string    `json:"url"`
	AssetID string    `json:"assetId"`
	Kind    AssetKind `json:"kind"`
}

// IsZero reports whether the reference is unset.
func (r AssetRef) IsZero() bool {
	return r.URL == "" && r.AssetID == ""
}

// Project associates a marker image with the video played when it is recognised.
// Projects are never mutated after creation.
type Project struct {
	ID            string
	Name          string
	OriginalImage AssetRef
	MarkerImage   AssetRef
	Video         AssetRef
	Features      fingerprint.MarkerFeatures
	CreatedAt     time.Time
}

// SortProjects orders projects by creation time, then id.
func SortProjects(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.Before(projects[j].CreatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
}
