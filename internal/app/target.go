package app

import (
	"slices"
	"sync"

	"github.com/finelagusaz/ghost-launcher/internal/scan"
)

// Target is the active scan configuration. Changes are held in memory only.
type Target struct {
	mu      sync.RWMutex
	root    string
	folders []string
}

// NewTarget returns a Target starting at root and folders.
func NewTarget(root string, folders []string) *Target {
	return &Target{root: root, folders: slices.Clone(folders)}
}

// Get returns the current root and a copy of the additional folders.
func (t *Target) Get() (string, []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root, slices.Clone(t.folders)
}

// Set replaces the root and additional folders.
func (t *Target) Set(root string, folders []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
	t.folders = slices.Clone(folders)
}

// Request builds a refresh request for the current configuration.
func (t *Target) Request(force bool) scan.Request {
	root, folders := t.Get()
	return scan.Request{Root: root, Folders: folders, Force: force}
}

// Identity returns the configuration identity of the current configuration.
func (t *Target) Identity() string {
	return t.Request(false).Identity()
}
