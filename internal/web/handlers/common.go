package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/registry"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps registry and ingestion errors to status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *registry.ValidationError
	var uploadErr *assetstore.UploadError
	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &uploadErr):
		respondError(w, http.StatusBadGateway, uploadErr.Error())
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "project not found")
	default:
		log.Printf("request failed: %s", sanitizeForLog(err.Error()))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// ProjectResponse is the public view of a project. Only asset URLs and ids
// are exposed.
type ProjectResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	OriginalImage database.AssetRef `json:"originalImage"`
	MarkerImage   database.AssetRef `json:"markerImage"`
	Video         database.AssetRef `json:"video"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func projectToResponse(p database.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		OriginalImage: p.OriginalImage,
		MarkerImage:   p.MarkerImage,
		Video:         p.Video,
		CreatedAt:     p.CreatedAt,
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
