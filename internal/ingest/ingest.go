// Package ingest validates project submissions, uploads their assets and
// registers the resulting project.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/registry"
)

// Asset is one uploaded file.
type Asset struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is a request to create a project.
type Submission struct {
	Name     string
	Original Asset
	Marker   *Asset // optional override for the recognised image
	Video    Asset
}

// ProjectCreator is the registry operation the pipeline needs.
type ProjectCreator interface {
	Create(ctx context.Context, np registry.NewProject) (database.Project, error)
}

// Pipeline turns submissions into registered projects.
type Pipeline struct {
	store    assetstore.Store
	projects ProjectCreator
	logger   *slog.Logger
}

// NewPipeline creates a pipeline uploading to store and registering into projects.
func NewPipeline(store assetstore.Store, projects ProjectCreator) *Pipeline {
	return &Pipeline{
		store:    store,
		projects: projects,
		logger:   slog.Default().With("component", "ingest"),
	}
}

type uploadSlot struct {
	upload assetstore.Upload
	result assetstore.Object
	done   bool
}

// Ingest validates s without any network call, uploads its assets
// concurrently and creates the project. Upload failures yield an
// *assetstore.UploadError and no project.
func (p *Pipeline) Ingest(ctx context.Context, s Submission) (database.Project, error) {
	v, err := validate(s)
	if err != nil {
		return database.Project{}, err
	}

	slots := []*uploadSlot{
		{upload: assetstore.Upload{
			Kind: database.AssetImage, Folder: constants.OriginalImageFolder,
			Name: s.Original.Filename, ContentType: v.originalType, Data: s.Original.Data,
		}},
		{upload: assetstore.Upload{
			Kind: database.AssetVideo, Folder: constants.VideoFolder,
			Name: s.Video.Filename, ContentType: v.videoType, Data: s.Video.Data,
		}},
	}
	if s.Marker != nil {
		slots = append(slots, &uploadSlot{upload: assetstore.Upload{
			Kind: database.AssetImage, Folder: constants.MarkerImageFolder,
			Name: s.Marker.Filename, ContentType: v.markerType, Data: s.Marker.Data,
		}})
	}

	if err := p.uploadAll(ctx, slots); err != nil {
		p.warnLeaked(slots, err)
		return database.Project{}, err
	}

	original := ref(slots[0], database.AssetImage)
	marker := original
	if s.Marker != nil {
		marker = ref(slots[2], database.AssetImage)
	}

	project, err := p.projects.Create(ctx, registry.NewProject{
		Name:     s.Name,
		Original: original,
		Marker:   marker,
		Video:    ref(slots[1], database.AssetVideo),
		Features: v.features,
	})
	if err != nil {
		p.warnLeaked(slots, err)
		return database.Project{}, err
	}

	p.logger.Info("project ingested", "id", project.ID, "name", project.Name,
		"marker_override", s.Marker != nil, "video_bytes", len(s.Video.Data))
	return project, nil
}

func (p *Pipeline) uploadAll(ctx context.Context, slots []*uploadSlot) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range slots {
		g.Go(func() error {
			obj, err := p.store.Upload(gctx, slot.upload)
			if err != nil {
				var uploadErr *assetstore.UploadError
				if !errors.As(err, &uploadErr) {
					err = &assetstore.UploadError{Kind: slot.upload.Kind, Err: err}
				}
				return err
			}
			slot.result = obj
			slot.done = true
			return nil
		})
	}
	return g.Wait()
}

// warnLeaked logs assets that were uploaded for a project that was never
// created. They are left in place for manual cleanup.
func (p *Pipeline) warnLeaked(slots []*uploadSlot, cause error) {
	var leaked []string
	for _, s := range slots {
		if s.done {
			leaked = append(leaked, s.result.AssetID)
		}
	}
	if len(leaked) == 0 {
		return
	}
	p.logger.Warn("uploaded assets left without a project",
		"asset_ids", leaked, "error", cause)
}

func ref(s *uploadSlot, kind database.AssetKind) database.AssetRef {
	return database.AssetRef{URL: s.result.URL, AssetID: s.result.AssetID, Kind: kind}
}

// Describe renders a short human summary of a submission for CLI output.
func Describe(s Submission) string {
	marker := "original"
	if s.Marker != nil {
		marker = s.Marker.Filename
	}
	return fmt.Sprintf("%s (image %s, marker %s, video %s)", s.Name, s.Original.Filename, marker, s.Video.Filename)
}
