package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/config"
	"github.com/finelagusaz/ghost-launcher/internal/ghost"
	"github.com/finelagusaz/ghost-launcher/internal/scan"
)

// switchScanner returns ghosts named after the root it is asked to scan, or
// fails when fail is set.
type switchScanner struct {
	calls atomic.Int32
	fail  atomic.Bool
	thumb string
}

func (s *switchScanner) Scan(_ context.Context, root string, _ []string) (scan.Result, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return scan.Result{}, errors.New("ssp folder missing")
	}
	items := make([]ghost.Ghost, 5)
	for i := range items {
		items[i] = ghost.Ghost{
			Name:          fmt.Sprintf("%s ghost %d", strings.Trim(root, "/"), i),
			DirectoryName: fmt.Sprintf("dir%d", i),
			Source:        "ssp",
			ThumbnailPath: s.thumb,
		}
	}
	return scan.Result{Items: items, Fingerprint: "fp-" + root}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App, *switchScanner) {
	t.Helper()
	return newTestServerWith(t, &switchScanner{})
}

func newTestServerWith(t *testing.T, sc *switchScanner) (*httptest.Server, *app.App, *switchScanner) {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "catalog.db")
	cfg.RootPath = "/ssp"
	cfg.Window.PageSize = 2
	cfg.Window.MaxRows = 10

	a, err := app.Open(cfg, app.WithScanner(sc))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv, err := New(cfg.HTTPAddr, a, nil, "test")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, a, sc
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type searchBody struct {
	Items []struct {
		Name    string `json:"name"`
		ItemKey string `json:"item_key"`
	} `json:"items"`
	Total       int    `json:"total"`
	LoadedStart int    `json:"loaded_start"`
	Generation  uint64 `json:"generation"`
	Result      string `json:"result"`
}

func TestRefreshThenSearchWindow(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var out scan.Outcome
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "", &out))
	assert.True(t, out.Written)
	assert.Equal(t, uint64(1), out.Generation)

	var page searchBody
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/search?session=s1&offset=0", "", &page))
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "replace", page.Result)
	assert.Equal(t, uint64(1), page.Generation)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/search?session=s1&offset=2", "", &page))
	assert.Equal(t, "merge", page.Result)
	assert.Equal(t, 0, page.LoadedStart)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "ssp ghost 3", page.Items[3].Name)

	// A new query starts a new window.
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/search?session=s1&q=GHOST+4", "", &page))
	assert.Equal(t, "replace", page.Result)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ssp ghost 4", page.Items[0].Name)
}

func TestSearchWithoutSessionReturnsPageOnly(t *testing.T) {
	ts, _, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", `{"force":true}`, nil))

	var page searchBody
	doJSON(t, http.MethodGet, ts.URL+"/api/search?offset=2&limit=1", "", &page)
	doJSON(t, http.MethodGet, ts.URL+"/api/search?offset=3&limit=1", "", &page)
	assert.Equal(t, 3, page.LoadedStart)
	assert.Len(t, page.Items, 1)
}

func TestSearchBeforeRefreshIsEmpty(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var page searchBody
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/search", "", &page))
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestRefreshErrors(t *testing.T) {
	ts, a, sc := newTestServer(t)

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "{", nil))

	sc.fail.Store(true)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.Equal(t, http.StatusBadGateway, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "", &body))
	assert.Equal(t, "SCAN_FAILED", body.Error.Code)
	assert.Contains(t, body.Error.Message, "ssp folder missing")

	var status struct {
		Refresh scan.State `json:"refresh"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/api/status", "", &status)
	assert.False(t, status.Refresh.Loading)
	assert.NotEmpty(t, status.Refresh.Error)

	a.Target.Set("", nil)
	require.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "", &body))
	assert.Equal(t, "NO_ROOT", body.Error.Code)
}

func TestConfigPatchSwitchesIdentity(t *testing.T) {
	ts, a, sc := newTestServer(t)
	before := a.Target.Identity()

	var cfg struct {
		RootPath          string   `json:"root_path"`
		AdditionalFolders []string `json:"additional_folders"`
		Identity          string   `json:"identity"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPatch, ts.URL+"/api/config",
		`{"root_path":" /other ","additional_folders":["/x"]}`, &cfg))
	assert.Equal(t, "/other", cfg.RootPath)
	assert.Equal(t, []string{"/x"}, cfg.AdditionalFolders)
	assert.NotEqual(t, before, cfg.Identity)

	// The change triggers a background refresh of the new configuration.
	require.Eventually(t, func() bool {
		return a.Orchestrator.State().Generation == 1
	}, 5*time.Second, 10*time.Millisecond)
	ok, err := a.Catalog.Exists(context.Background(), cfg.Identity)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), sc.calls.Load())

	var page searchBody
	doJSON(t, http.MethodGet, ts.URL+"/api/search?q=other", "", &page)
	assert.Equal(t, 5, page.Total)

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPatch, ts.URL+"/api/config", "nope", nil))
}

func TestRangeEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var got struct {
		Start  int `json:"start"`
		End    int `json:"end"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
	target := ts.URL + "/api/range?scroll_top=2000&viewport_height=400&row_height=36&gap=4&overscan=2&count=100"
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, target, "", &got))
	assert.Equal(t, 48, got.Start)
	assert.Equal(t, 62, got.End)
	assert.Equal(t, 48, got.Offset)
	assert.Equal(t, 14, got.Limit)

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, ts.URL+"/api/range?count=abc", "", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestThumbnailEndpoint(t *testing.T) {
	dir := t.TempDir()
	thumb := filepath.Join(dir, "surface0.png")
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	f, err := os.Create(thumb)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	ts, a, _ := newTestServerWith(t, &switchScanner{thumb: thumb})
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/refresh", "", nil))

	page, err := a.Catalog.Search(context.Background(), a.Target.Identity(), "", 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	key := url.QueryEscape(page.Rows[0].ItemKey)

	resp, err := http.Get(ts.URL + "/api/thumbnail?w=10&key=" + key)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Bounds().Dx())
	assert.Equal(t, 5, got.Bounds().Dy())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/thumbnail?w=10&key="+key, nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)

	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+"/api/thumbnail?key=nope", "", nil))
	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, ts.URL+"/api/thumbnail", "", nil))
}

func TestRunWaitsForConfigChangeRefresh(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "catalog.db")
	cfg.RootPath = "/ssp"

	started := make(chan struct{})
	var finished atomic.Bool
	blocking := scan.ScannerFunc(func(ctx context.Context, _ string, _ []string) (scan.Result, error) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
		return scan.Result{}, ctx.Err()
	})
	a, err := app.Open(cfg, app.WithScanner(blocking))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv, err := New("127.0.0.1:0", a, nil, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(`{"root_path":"/other"}`))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("config change did not start a refresh")
	}

	cancel()
	require.NoError(t, <-runErr)
	assert.True(t, finished.Load(), "Run returned before the background refresh")
}
