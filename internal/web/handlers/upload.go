package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/ar-marker/internal/ingest"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling files to disk.
const multipartMemory = 32 << 20

// Form and JSON field names of a project submission.
const (
	fieldName     = "name"
	fieldOriginal = "originalImage"
	fieldMarker   = "markerImage"
	fieldVideo    = "arVideo"
)

// parseMultipartSubmission reads a project submission from a multipart form.
// Missing files are left empty so validation reports them.
func parseMultipartSubmission(r *http.Request) (ingest.Submission, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return ingest.Submission{}, errors.New("failed to parse multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	sub := ingest.Submission{Name: r.FormValue(fieldName)}

	var err error
	if sub.Original, _, err = readFormFile(r, fieldOriginal); err != nil {
		return sub, err
	}
	if sub.Video, _, err = readFormFile(r, fieldVideo); err != nil {
		return sub, err
	}
	marker, ok, err := readFormFile(r, fieldMarker)
	if err != nil {
		return sub, err
	}
	if ok {
		sub.Marker = &marker
	}
	return sub, nil
}

func readFormFile(r *http.Request, field string) (ingest.Asset, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return ingest.Asset{}, false, nil
	}
	if err != nil {
		return ingest.Asset{}, false, fmt.Errorf("failed to read %s", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Asset{}, false, fmt.Errorf("failed to read %s", field)
	}
	return ingest.Asset{
		Filename:    filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true, nil
}

// createProjectRequest is the JSON submission format. Files are data URLs
// ("data:image/png;base64,...").
type createProjectRequest struct {
	Name  string `json:"name"`
	Files struct {
		OriginalImage string `json:"originalImage"`
		MarkerImage   string `json:"markerImage"`
		ArVideo       string `json:"arVideo"`
	} `json:"files"`
}

func parseJSONSubmission(r *http.Request) (ingest.Submission, error) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ingest.Submission{}, errors.New(errInvalidRequestBody)
	}

	sub := ingest.Submission{Name: req.Name}
	var err error
	if sub.Original, err = decodeDataURL(fieldOriginal, req.Files.OriginalImage); err != nil {
		return sub, err
	}
	if sub.Video, err = decodeDataURL(fieldVideo, req.Files.ArVideo); err != nil {
		return sub, err
	}
	if req.Files.MarkerImage != "" {
		marker, err := decodeDataURL(fieldMarker, req.Files.MarkerImage)
		if err != nil {
			return sub, err
		}
		sub.Marker = &marker
	}
	return sub, nil
}

// decodeDataURL decodes a base64 data URL. An empty value yields an empty
// asset.
func decodeDataURL(field, value string) (ingest.Asset, error) {
	if value == "" {
		return ingest.Asset{}, nil
	}

	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return ingest.Asset{}, fmt.Errorf("%s must be a data URL", field)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ingest.Asset{}, fmt.Errorf("%s must be a data URL", field)
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return ingest.Asset{}, fmt.Errorf("%s must be base64 encoded", field)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ingest.Asset{}, fmt.Errorf("%s is not valid base64", field)
	}
	return ingest.Asset{Filename: field, ContentType: contentType, Data: data}, nil
}
