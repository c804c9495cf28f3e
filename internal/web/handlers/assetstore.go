package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
)

const assetStorePingTimeout = 10 * time.Second

// AssetStoreHandler reports asset store connectivity
type AssetStoreHandler struct {
	store assetstore.Store
}

// NewAssetStoreHandler creates a new asset store handler
func NewAssetStoreHandler(store assetstore.Store) *AssetStoreHandler {
	return &AssetStoreHandler{store: store}
}

// Status pings the asset store.
func (h *AssetStoreHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), assetStorePingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
