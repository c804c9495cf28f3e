package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/matcher"
)

// FrameMatcher scores frames against the registered markers.
type FrameMatcher interface {
	Match(ctx context.Context, frame []byte) (matcher.Result, error)
	Snapshot() matcher.IndexInfo
	Threshold() float64
}

// MatchHandler handles one-shot frame matching
type MatchHandler struct {
	engine  FrameMatcher
	timeout time.Duration
}

// NewMatchHandler creates a match handler; each request is bounded by timeout.
func NewMatchHandler(engine FrameMatcher, timeout time.Duration) *MatchHandler {
	return &MatchHandler{
		engine:  engine,
		timeout: timeout,
	}
}

// MatchResponse is the result of matching one frame
type MatchResponse struct {
	Matched    bool             `json:"matched"`
	ProjectID  string           `json:"projectId,omitempty"`
	Confidence float64          `json:"confidence"`
	TimedOut   bool             `json:"timedOut,omitempty"`
	Project    *ProjectResponse `json:"project,omitempty"`
}

// Match scores the uploaded frame. The frame is the raw request body or the
// "frame" field of a multipart form.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameSize)

	frame, err := readFrame(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "frame is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.engine.Match(ctx, frame)
	switch {
	case errors.Is(err, matcher.ErrMatchTimeout):
		respondJSON(w, http.StatusOK, MatchResponse{TimedOut: true})
		return
	case errors.Is(err, matcher.ErrInvalidFrame):
		respondError(w, http.StatusBadRequest, "frame is not a supported image")
		return
	case err != nil:
		respondServiceError(w, err)
		return
	}

	response := MatchResponse{
		Matched:    res.Matched,
		ProjectID:  res.ProjectID,
		Confidence: res.Confidence,
	}
	if res.Project != nil {
		p := projectToResponse(*res.Project)
		response.Project = &p
	}
	respondJSON(w, http.StatusOK, response)
}

func readFrame(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.New("failed to read frame")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(constants.MaxFrameSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	asset, _, err := readFormFile(r, "frame")
	if err != nil {
		return nil, err
	}
	return asset.Data, nil
}
