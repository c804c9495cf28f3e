package registry

import (
	"strings"
	"unicode/utf8"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
)

// validate normalises and checks a NewProject.
func validate(np *NewProject) error {
	np.Name = strings.TrimSpace(np.Name)
	switch {
	case np.Name == "":
		return Invalid("name", "is required")
	case utf8.RuneCountInString(np.Name) > constants.MaxNameLength:
		return Invalid("name", "must be at most %d characters", constants.MaxNameLength)
	}

	refs := []struct {
		field string
		ref   database.AssetRef
		kind  database.AssetKind
	}{
		{"originalImage", np.Original, database.AssetImage},
		{"markerImage", np.Marker, database.AssetImage},
		{"video", np.Video, database.AssetVideo},
	}
	for _, r := range refs {
		if r.ref.URL == "" || r.ref.AssetID == "" {
			return Invalid(r.field, "is required")
		}
		if r.ref.Kind != r.kind {
			return Invalid(r.field, "must have kind %q, got %q", r.kind, r.ref.Kind)
		}
	}

	if np.Features.IsZero() {
		return Invalid("markerImage", "has no computed features")
	}
	return nil
}
