// Package matcher recognises registered markers in camera frames.
package matcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

var (
	// ErrMatchTimeout is returned when the context deadline passes before
	// scoring finishes. Callers treat it as a miss.
	ErrMatchTimeout = errors.New("marker match timed out")
	// ErrInvalidFrame is returned for frames that cannot be decoded.
	ErrInvalidFrame = errors.New("invalid frame")
)

// Result is the outcome of matching one frame.
type Result struct {
	Matched    bool              `json:"matched"`
	ProjectID  string            `json:"projectId,omitempty"`
	Confidence float64           `json:"confidence"`
	Project    *database.Project `json:"-"`
}

// Options configures an Engine.
type Options struct {
	Threshold    float64 // a match needs confidence strictly above this
	MaxFrameSize int     // frames are scaled to fit within this many pixels per side
	CacheSize    int     // frame fingerprints kept; 0 uses the default
}

// Engine scores frames against the current marker snapshot. It is safe for
// concurrent use; each Match reads one immutable snapshot.
type Engine struct {
	opts    Options
	index   atomic.Pointer[MarkerIndex]
	version atomic.Uint64
	cache   *lru.Cache[[sha256.Size]byte, []fingerprint.MarkerFeatures]
	logger  *slog.Logger
}

// New creates an engine with an empty marker set.
func New(opts Options) (*Engine, error) {
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %f", opts.Threshold)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = constants.FrameCacheSize
	}

	cache, err := lru.New[[sha256.Size]byte, []fingerprint.MarkerFeatures](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create frame cache: %w", err)
	}

	e := &Engine{
		opts:   opts,
		cache:  cache,
		logger: slog.Default().With("component", "matcher"),
	}
	e.index.Store(BuildIndex(nil, 0))
	return e, nil
}

// ProjectsChanged rebuilds the marker index. It is called by the registry
// under its write lock, so the new set is visible before the mutation returns.
func (e *Engine) ProjectsChanged(projects []database.Project) {
	idx := BuildIndex(projects, e.version.Add(1))
	e.index.Store(idx)
	e.logger.Debug("marker index rebuilt", "version", idx.version, "markers", idx.Len(), "hnsw", idx.graph != nil)
}

// Snapshot describes the current marker index.
func (e *Engine) Snapshot() IndexInfo {
	return e.index.Load().Info()
}

// Threshold returns the configured match threshold.
func (e *Engine) Threshold() float64 {
	return e.opts.Threshold
}

// Match scores an encoded frame against the current marker set.
func (e *Engine) Match(ctx context.Context, frame []byte) (Result, error) {
	idx := e.index.Load()
	if err := checkContext(ctx); err != nil {
		return Result{}, err
	}
	if idx.Len() == 0 {
		return Result{}, nil
	}

	crops, err := e.frameFeatures(ctx, frame)
	if err != nil {
		return Result{}, err
	}
	return e.score(ctx, idx, crops)
}

// frameFeatures fingerprints the crop lattice of a frame, memoised by content digest.
func (e *Engine) frameFeatures(ctx context.Context, frame []byte) ([]fingerprint.MarkerFeatures, error) {
	key := sha256.Sum256(frame)
	if crops, ok := e.cache.Get(key); ok {
		return crops, nil
	}

	img, _, err := fingerprint.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	img = fingerprint.FitWithin(img, e.opts.MaxFrameSize)

	var crops []fingerprint.MarkerFeatures
	for _, r := range cropLattice(img.Bounds()) {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		f, err := fingerprint.ExtractRegion(img, r)
		if errors.Is(err, fingerprint.ErrLowTexture) {
			continue
		}
		if err != nil {
			return nil, err
		}
		crops = append(crops, f)
	}

	e.cache.Add(key, crops)
	return crops, nil
}

// score returns the best candidate over all crops. Ties resolve to the
// lowest project id.
func (e *Engine) score(ctx context.Context, idx *MarkerIndex, crops []fingerprint.MarkerFeatures) (Result, error) {
	best, bestConf := -1, -1.0
	for _, crop := range crops {
		if err := checkContext(ctx); err != nil {
			return Result{}, err
		}
		for _, i := range idx.candidates(crop.Descriptor) {
			c := fingerprint.Confidence(idx.projects[i].Features, crop)
			// Positions are sorted by id, so an equal score at a lower
			// position is the lower id.
			if c > bestConf || (c == bestConf && i < best) {
				best, bestConf = i, c
			}
		}
	}

	if best < 0 {
		return Result{}, nil
	}
	res := Result{Confidence: bestConf}
	if bestConf > e.opts.Threshold {
		p := idx.projects[best]
		res.Matched = true
		res.ProjectID = p.ID
		res.Project = &p
	}
	return res, nil
}

func checkContext(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrMatchTimeout
	}
	return err
}
