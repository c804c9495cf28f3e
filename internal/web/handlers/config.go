package handlers

import (
	"net/http"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/matcher"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	engine FrameMatcher
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, engine FrameMatcher) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		engine: engine,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Threshold     float64           `json:"threshold"`
	IntervalMS    int64             `json:"intervalMs"`
	MaxFrameSize  int               `json:"maxFrameSize"`
	Index         matcher.IndexInfo `json:"index"`
	AssetStore    string            `json:"assetStore"`
	Database      string            `json:"database"`
	ErrorGuidance map[string]string `json:"errorGuidance"`
}

// Get returns the settings a capture client needs, plus index diagnostics.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	guidance := make(map[string]string, len(h.config.Remediation.Errors))
	for kind := range h.config.Remediation.Errors {
		guidance[kind] = h.config.Remediation.For(kind)
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Threshold:     h.engine.Threshold(),
		IntervalMS:    h.config.Matching.Interval.Milliseconds(),
		MaxFrameSize:  h.config.Matching.MaxFrameSize,
		Index:         h.engine.Snapshot(),
		AssetStore:    assetStoreMode(h.config),
		Database:      h.config.Database.Driver,
		ErrorGuidance: guidance,
	})
}

func assetStoreMode(cfg *config.Config) string {
	switch {
	case cfg.AssetStore.Configured():
		return "s3"
	case cfg.AssetStore.Mock:
		return "memory"
	default:
		return "unconfigured"
	}
}
