package handlers

import (
	"net/http"
	"strconv"

	"github.com/finelagusaz/ghost-launcher/internal/window"
)

// RangeHandler handles GET /api/range. It tells a thin client which rows to
// render for a scroll position and which aligned page to fetch for them.
type RangeHandler struct {
	PageSize int
}

type rangeResponse struct {
	window.Span
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ServeHTTP reads scroll_top, viewport_height, row_height, gap, overscan and
// count from the query string.
func (h *RangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		vp        window.Viewport
		scrollTop float64
		count     int
		err       error
	)
	floats := []struct {
		name string
		dst  *float64
	}{
		{"scroll_top", &scrollTop},
		{"viewport_height", &vp.Height},
		{"row_height", &vp.EstimatedRowHeight},
		{"gap", &vp.Gap},
	}
	for _, f := range floats {
		if v := q.Get(f.name); v != "" {
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_REQUEST", f.name+" must be a number")
				return
			}
		}
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"overscan", &vp.OverscanRows},
		{"count", &count},
	}
	for _, f := range ints {
		if v := q.Get(f.name); v != "" {
			if *f.dst, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_REQUEST", f.name+" must be an integer")
				return
			}
		}
	}

	span := vp.Range(scrollTop, count)
	offset, limit := window.Page(span, h.PageSize)
	writeJSON(w, http.StatusOK, rangeResponse{Span: span, Offset: offset, Limit: limit})
}
