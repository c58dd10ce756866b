package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/finelagusaz/ghost-launcher/internal/app"
)

// ConfigHandler handles GET/PATCH /api/config.
type ConfigHandler struct {
	App *app.App
	// OnChange runs after a patch changed the active configuration.
	OnChange func()
	mu       sync.Mutex // serializes patches
}

// ConfigPatch describes the fields that can be updated at runtime.
// Only supplied (non-nil) fields are applied. Changes are not persisted.
type ConfigPatch struct {
	RootPath          *string  `json:"root_path"`
	AdditionalFolders []string `json:"additional_folders"`
}

type configResponse struct {
	RootPath          string   `json:"root_path"`
	AdditionalFolders []string `json:"additional_folders"`
	Identity          string   `json:"identity"`
	Schedule          string   `json:"schedule"`
	MaxGenerations    int      `json:"max_generations"`
	TTLDays           int      `json:"ttl_days"`
	PageSize          int      `json:"page_size"`
	MaxRows           int      `json:"max_rows"`
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

// Update handles PATCH /api/config.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	h.mu.Lock()
	before := h.App.Target.Identity()
	root, folders := h.App.Target.Get()
	if patch.RootPath != nil {
		root = strings.TrimSpace(*patch.RootPath)
	}
	if patch.AdditionalFolders != nil {
		folders = patch.AdditionalFolders
	}
	h.App.Target.Set(root, folders)
	changed := h.App.Target.Identity() != before
	h.mu.Unlock()

	if changed && h.OnChange != nil {
		h.OnChange()
	}
	writeJSON(w, http.StatusOK, h.current())
}

func (h *ConfigHandler) current() configResponse {
	root, folders := h.App.Target.Get()
	if folders == nil {
		folders = []string{}
	}
	cfg := h.App.Config
	return configResponse{
		RootPath:          root,
		AdditionalFolders: folders,
		Identity:          h.App.Target.Identity(),
		Schedule:          cfg.Schedule,
		MaxGenerations:    cfg.Eviction.MaxGenerations,
		TTLDays:           cfg.Eviction.TTLDays,
		PageSize:          cfg.Window.PageSize,
		MaxRows:           cfg.Window.MaxRows,
	}
}
