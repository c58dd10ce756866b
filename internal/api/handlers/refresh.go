package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/scan"
)

// RefreshHandler handles POST /api/refresh.
type RefreshHandler struct {
	App *app.App
}

type refreshRequest struct {
	Force bool `json:"force"`
}

// ServeHTTP refreshes the active configuration and returns the outcome.
// An empty body is a non-forced refresh.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	out, err := h.App.Refresh(r.Context(), req.Force)
	if err != nil {
		status, code := refreshErrorStatus(err)
		writeError(w, status, code, scan.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func refreshErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scan.ErrNoRoot):
		return http.StatusConflict, "NO_ROOT"
	case errors.Is(err, scan.ErrScanFailure):
		return http.StatusBadGateway, "SCAN_FAILED"
	case errors.Is(err, scan.ErrStoreWrite):
		return http.StatusInternalServerError, "STORE_WRITE_FAILED"
	case errors.Is(err, scan.ErrStoreRead):
		return http.StatusInternalServerError, "STORE_READ_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
