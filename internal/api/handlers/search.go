package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/catalog"
	"github.com/finelagusaz/ghost-launcher/internal/metrics"
	"github.com/finelagusaz/ghost-launcher/internal/scan"
	"github.com/finelagusaz/ghost-launcher/internal/window"
)

// SearchHandler handles GET /api/search. Each client session owns a result
// window; sessions beyond the configured maximum are evicted least recently
// used first.
type SearchHandler struct {
	app      *app.App
	fetcher  window.Fetcher[catalog.Row]
	pageSize int
	maxRows  int

	mu       sync.Mutex // guards session creation
	sessions *lru.Cache[string, *window.Session[catalog.Row]]
}

// NewSearchHandler creates a SearchHandler sized from the application config.
func NewSearchHandler(a *app.App) (*SearchHandler, error) {
	sessions, err := lru.NewWithEvict(max(a.Config.Window.MaxSessions, 1),
		func(string, *window.Session[catalog.Row]) { metrics.WindowSessions.Dec() })
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &SearchHandler{
		app:      a,
		fetcher:  storeFetcher{store: a.Catalog},
		pageSize: a.Config.Window.PageSize,
		maxRows:  a.Config.Window.MaxRows,
		sessions: sessions,
	}, nil
}

type searchResponse struct {
	Items       []catalog.Row `json:"items"`
	Total       int           `json:"total"`
	LoadedStart int           `json:"loaded_start"`
	Generation  uint64        `json:"generation"`
	Result      string        `json:"result"`
}

// ServeHTTP fetches one page for the active configuration and returns the
// session's merged window. Without a session parameter the page is returned
// on its own.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, h.pageSize, h.maxRows)
	c := window.Context{
		Identity:   h.app.Target.Identity(),
		Query:      strings.TrimSpace(r.URL.Query().Get("q")),
		Generation: h.app.Orchestrator.State().Generation,
	}

	sess := h.session(r.URL.Query().Get("session"))
	view, result, err := sess.Fetch(r.Context(), c, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_READ_FAILED",
			scan.UserMessage(fmt.Errorf("%w: %w", scan.ErrStoreRead, err)))
		return
	}

	items := view.Rows
	if items == nil {
		items = []catalog.Row{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:       items,
		Total:       view.Total,
		LoadedStart: view.LoadedStart,
		Generation:  view.Context.Generation,
		Result:      result.String(),
	})
}

func (h *SearchHandler) session(id string) *window.Session[catalog.Row] {
	if id == "" {
		return window.NewSession(h.fetcher, h.maxRows)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions.Get(id); ok {
		return s
	}
	s := window.NewSession(h.fetcher, h.maxRows)
	h.sessions.Add(id, s)
	metrics.WindowSessions.Inc()
	return s
}

// storeFetcher reads pages from the catalog store.
type storeFetcher struct {
	store *catalog.Store
}

func (f storeFetcher) Fetch(ctx context.Context, identity, query string, limit, offset int) ([]catalog.Row, int, error) {
	page, err := f.store.Search(ctx, identity, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return page.Rows, page.Total, nil
}
