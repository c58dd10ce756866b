package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/media"
)

const (
	defaultThumbnailSize = 256
	maxThumbnailSize     = 1024
	thumbnailCacheSize   = 256
)

// ThumbnailHandler handles GET /api/thumbnail.
type ThumbnailHandler struct {
	app      *app.App
	rendered *lru.Cache[string, []byte]
}

// NewThumbnailHandler creates a ThumbnailHandler with a bounded cache of
// rendered images.
func NewThumbnailHandler(a *app.App) (*ThumbnailHandler, error) {
	rendered, err := lru.New[string, []byte](thumbnailCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create thumbnail cache: %w", err)
	}
	return &ThumbnailHandler{app: a, rendered: rendered}, nil
}

// ServeHTTP renders the thumbnail of the ghost with item key "key" in the
// active configuration as a PNG no larger than w x h.
func (h *ThumbnailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "key is required")
		return
	}
	width := parseSize(q.Get("w"))
	height := parseSize(q.Get("h"))

	row, ok, err := h.app.Catalog.Get(r.Context(), h.app.Target.Identity(), key)
	if err != nil {
		slog.Error("thumbnail: get row", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "STORE_READ_FAILED", "Could not read the local catalog.")
		return
	}
	if !ok || row.ThumbnailPath == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No thumbnail for this ghost")
		return
	}

	etag := strconv.Quote(row.RowFingerprint + "-" + strconv.Itoa(width) + "x" + strconv.Itoa(height))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	img, ok := h.rendered.Get(etag)
	if !ok {
		img, err = media.Thumbnail(row.ThumbnailPath, width, height, row.ThumbnailUseSelfAlpha)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Thumbnail file is missing")
			return
		case errors.Is(err, media.ErrUnsupported):
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED", err.Error())
			return
		case err != nil:
			slog.Warn("thumbnail: render", "path", row.ThumbnailPath, "error", err)
			writeError(w, http.StatusUnprocessableEntity, "RENDER_FAILED", "Thumbnail could not be decoded")
			return
		}
		h.rendered.Add(etag, img)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// parseSize reads a thumbnail bound, falling back to the default for
// missing or invalid values.
func parseSize(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultThumbnailSize
	}
	return min(n, maxThumbnailSize)
}
