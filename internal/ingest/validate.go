package ingest

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
	"github.com/kozaktomas/ar-marker/internal/registry"
)

// validated carries what Validate learned about a submission.
type validated struct {
	originalType string
	markerType   string
	videoType    string
	features     fingerprint.MarkerFeatures
}

// Validate checks a submission locally without uploading anything. Every
// failure is a *registry.ValidationError.
func Validate(s Submission) error {
	_, err := validate(s)
	return err
}

func validate(s Submission) (validated, error) {
	var v validated

	name := strings.TrimSpace(s.Name)
	if name == "" {
		return v, registry.Invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > constants.MaxNameLength {
		return v, registry.Invalid("name", "must be at most %d characters", constants.MaxNameLength)
	}

	originalType, err := checkImage("originalImage", s.Original)
	if err != nil {
		return v, err
	}
	v.originalType = originalType

	markerAsset := s.Original
	if s.Marker != nil {
		if v.markerType, err = checkImage("markerImage", *s.Marker); err != nil {
			return v, err
		}
		markerAsset = *s.Marker
	}

	if v.videoType, err = checkVideo(s.Video); err != nil {
		return v, err
	}

	img, _, err := fingerprint.Decode(markerAsset.Data)
	if err != nil {
		return v, registry.Invalid(markerField(s), "could not be decoded")
	}
	v.features, err = fingerprint.Extract(img)
	if errors.Is(err, fingerprint.ErrLowTexture) {
		return v, registry.Invalid(markerField(s), "has too little detail to be recognised")
	}
	if err != nil {
		return v, registry.Invalid(markerField(s), "%v", err)
	}
	return v, nil
}

func markerField(s Submission) string {
	if s.Marker != nil {
		return "markerImage"
	}
	return "originalImage"
}

func checkImage(field string, a Asset) (string, error) {
	if len(a.Data) == 0 {
		return "", registry.Invalid(field, "is required")
	}
	if len(a.Data) > constants.MaxImageBytes {
		return "", registry.Invalid(field, "exceeds %d MB", constants.MaxImageBytes>>20)
	}

	img, format, err := fingerprint.Decode(a.Data)
	if errors.Is(err, fingerprint.ErrImageTooLarge) {
		return "", registry.Invalid(field, "exceeds %d megapixels", constants.MaxDecodePixels/1_000_000)
	}
	if err != nil {
		return "", registry.Invalid(field, "is not a supported image")
	}
	b := img.Bounds()
	if b.Dx() < constants.MinImageDimension || b.Dy() < constants.MinImageDimension {
		return "", registry.Invalid(field, "must be at least %dx%d pixels, got %dx%d",
			constants.MinImageDimension, constants.MinImageDimension, b.Dx(), b.Dy())
	}
	return "image/" + format, nil
}

func checkVideo(a Asset) (string, error) {
	if len(a.Data) == 0 {
		return "", registry.Invalid("video", "is required")
	}
	if len(a.Data) > constants.MaxVideoBytes {
		return "", registry.Invalid("video", "exceeds %d MB", constants.MaxVideoBytes>>20)
	}

	sniffed := http.DetectContentType(a.Data)
	if strings.HasPrefix(sniffed, "video/") {
		return sniffed, nil
	}
	// Containers the sniffer does not know (e.g. QuickTime) fall back to
	// the declared type.
	if sniffed == "application/octet-stream" && strings.HasPrefix(a.ContentType, "video/") {
		return a.ContentType, nil
	}
	return "", registry.Invalid("video", "must be a video file, got %s", sniffed)
}
