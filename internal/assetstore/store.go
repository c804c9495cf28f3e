// Package assetstore uploads marker images and overlay videos to durable object storage.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
)

// ErrNotConfigured is returned by every operation of a store built without credentials.
var ErrNotConfigured = errors.New("asset store is not configured")

// Upload is a single asset to store.
type Upload struct {
	Kind        database.AssetKind
	Folder      string // e.g. constants.VideoFolder
	Name        string // original filename, used for the object key slug
	ContentType string
	Data        []byte
}

// Object identifies a stored asset.
type Object struct {
	URL     string
	AssetID string
}

// Store is an asset hosting backend.
type Store interface {
	// Upload stores the asset and returns its durable URL and opaque id.
	Upload(ctx context.Context, u Upload) (Object, error)
	// Delete removes an asset by id.
	Delete(ctx context.Context, assetID string) error
	// Ping checks connectivity and credentials.
	Ping(ctx context.Context) error
}

// UploadError reports a failed upload of one asset.
type UploadError struct {
	Kind database.AssetKind
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// New selects a store from configuration: S3 when credentials are present,
// the in-memory placeholder when ASSETSTORE_MOCK is set outside production,
// and a store that rejects every upload otherwise.
func New(cfg *config.Config) (Store, error) {
	as := cfg.AssetStore
	switch {
	case as.Configured():
		return NewS3Store(as)
	case as.Mock && cfg.IsProduction():
		return nil, errors.New("ASSETSTORE_MOCK is not allowed when APP_ENV=production")
	case as.Mock:
		return NewMemoryStore(), nil
	default:
		return Unconfigured{}, nil
	}
}

// ObjectKey builds "ar-projects/<folder>/<slug>-<uuid><ext>" for an upload.
func ObjectKey(u Upload) string {
	ext := strings.ToLower(path.Ext(u.Name))
	if ext == "" {
		ext = extensionFor(u.ContentType)
	}
	base := Slug(strings.TrimSuffix(path.Base(u.Name), path.Ext(u.Name)))
	if base == "" {
		base = string(u.Kind)
	}
	folder := u.Folder
	if folder == "" {
		folder = string(u.Kind)
	}
	return path.Join(constants.AssetKeyPrefix, folder, base+"-"+uuid.NewString()+ext)
}

var knownExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/ogg":       ".ogv",
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := knownExtensions[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Slug lowercases s, strips diacritics and collapses everything that is not
// a letter or digit into single dashes.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, _ = transform.String(t, s)

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 60 {
		out = strings.TrimSuffix(out[:60], "-")
	}
	return out
}

// Unconfigured is the store used when no credentials are available.
type Unconfigured struct{}

func (Unconfigured) Upload(_ context.Context, u Upload) (Object, error) {
	return Object{}, &UploadError{Kind: u.Kind, Err: ErrNotConfigured}
}

func (Unconfigured) Delete(context.Context, string) error { return ErrNotConfigured }

func (Unconfigured) Ping(context.Context) error { return ErrNotConfigured }
