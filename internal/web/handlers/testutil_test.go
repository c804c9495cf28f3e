package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/database/memory"
	"github.com/kozaktomas/ar-marker/internal/ingest"
	"github.com/kozaktomas/ar-marker/internal/matcher"
	"github.com/kozaktomas/ar-marker/internal/registry"
	"github.com/kozaktomas/ar-marker/internal/session"
	"github.com/kozaktomas/ar-marker/internal/testutil"
)

// testEnv wires the real services over in-memory backends.
type testEnv struct {
	config   *config.Config
	store    *memory.Store
	assets   *assetstore.MemoryStore
	registry *registry.Registry
	engine   *matcher.Engine
	pipeline *ingest.Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Database:    config.DatabaseConfig{Driver: "memory"},
		AssetStore:  config.AssetStoreConfig{Mock: true},
		Matching:    config.MatchingConfig{Threshold: 0.7, Interval: time.Second, MaxFrameSize: 640},
		Remediation: config.LoadRemediation(),
	}

	engine, err := matcher.New(matcher.Options{Threshold: cfg.Matching.Threshold, MaxFrameSize: cfg.Matching.MaxFrameSize})
	if err != nil {
		t.Fatalf("matcher.New failed: %v", err)
	}
	store := memory.NewStore()
	reg := registry.New(store)
	reg.AddListener(engine)
	assets := assetstore.NewMemoryStore()

	return &testEnv{
		config:   cfg,
		store:    store,
		assets:   assets,
		registry: reg,
		engine:   engine,
		pipeline: ingest.NewPipeline(assets, reg),
	}
}

// sessionFactory builds fast-sampling sessions against the env's engine.
func (e *testEnv) sessionFactory() SessionFactory {
	return func(d camera.Device) *session.Session {
		return session.New(d, e.engine, session.Options{
			Interval:    10 * time.Millisecond,
			Remediation: e.config.Remediation,
		})
	}
}

// createProject registers a project whose marker is testutil.MarkerPNG(seed).
func (e *testEnv) createProject(t *testing.T, name string, seed int64) ProjectResponse {
	t.Helper()
	p, err := e.pipeline.Ingest(context.Background(), ingest.Submission{
		Name:     name,
		Original: ingest.Asset{Filename: "marker.png", ContentType: "image/png", Data: testutil.MarkerPNG(seed)},
		Video:    ingest.Asset{Filename: "clip.mp4", ContentType: "video/mp4", Data: testutil.MP4()},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return projectToResponse(p)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartBody builds a multipart form with the given fields and files.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for field, data := range files {
		part, err := writer.CreateFormFile(field, field+".bin")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response: %v (body: %s)", err, recorder.Body.String())
	}
}
