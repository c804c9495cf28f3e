package handlers

import (
	"context"
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/ingest"
)

// ProjectService is the registry surface used by the project endpoints.
type ProjectService interface {
	List(ctx context.Context) ([]database.Project, error)
	Get(ctx context.Context, id string) (database.Project, error)
	Delete(ctx context.Context, id string) error
}

// Ingester creates projects from submissions.
type Ingester interface {
	Ingest(ctx context.Context, s ingest.Submission) (database.Project, error)
}

// ProjectsHandler handles project endpoints
type ProjectsHandler struct {
	projects ProjectService
	ingester Ingester
}

// NewProjectsHandler creates a new projects handler
func NewProjectsHandler(projects ProjectService, ingester Ingester) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		ingester: ingester,
	}
}

// List returns all projects in creation order.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		response[i] = projectToResponse(p)
	}
	respondJSON(w, http.StatusOK, response)
}

// Get returns a single project.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectToResponse(p))
}

// Create registers a project from a multipart form or a JSON body with
// base64 data URLs.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var sub ingest.Submission
	var err error
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
		sub, err = parseMultipartSubmission(r)
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONUploadSize)
		sub, err = parseJSONSubmission(r)
	default:
		respondError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.ingester.Ingest(r.Context(), sub)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("Created project %s (%s)", p.ID, sanitizeForLog(p.Name))
	respondJSON(w, http.StatusCreated, projectToResponse(p))
}

type deleteProjectRequest struct {
	ID string `json:"id"`
}

// Delete removes the project named in the request body.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	h.deleteProject(w, r, req.ID)
}

// DeleteByID removes the project named in the URL.
func (h *ProjectsHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	h.deleteProject(w, r, chi.URLParam(r, "id"))
}

func (h *ProjectsHandler) deleteProject(w http.ResponseWriter, r *http.Request, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.projects.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("Deleted project %s", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"id":      id,
	})
}
