package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// currentVersion is the document version FileCache writes.
const currentVersion = 2

// document is the on-disk envelope. Entries is decoded according to Version.
type document struct {
	Version int             `json:"version"`
	Entries json.RawMessage `json:"entries"`
}

// entry is one identity's record in a version 2 document.
type entry struct {
	Fingerprint string `json:"fingerprint"`
	UpdatedAt   int64  `json:"updated_at"`
}

// FileCache keeps fingerprints in a versioned JSON document on disk.
//
// Version 1 documents map identity to fingerprint directly and are upgraded
// in memory on read; the next write persists version 2. Any other version
// makes Get fail with ErrUnsupportedVersion until Set replaces the file.
type FileCache struct {
	path       string
	now        func() time.Time
	maxEntries int

	mu sync.Mutex
}

// FileOption configures a FileCache.
type FileOption func(*FileCache)

// WithMaxEntries caps the number of stored entries. When a Set would exceed
// the cap, the least recently updated entries are dropped.
func WithMaxEntries(n int) FileOption {
	return func(c *FileCache) { c.maxEntries = n }
}

// NewFileCache returns a Cache persisted at path.
func NewFileCache(path string, opts ...FileOption) *FileCache {
	c := &FileCache{path: path, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FileCache) Get(_ context.Context, identity string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return "", false, err
	}
	e, ok := entries[identity]
	return e.Fingerprint, ok, nil
}

func (c *FileCache) Set(_ context.Context, identity, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		slog.Warn("fingerprint cache unreadable; starting a new document", "path", c.path, "error", err)
		entries = make(map[string]entry)
	}
	entries[identity] = entry{Fingerprint: fingerprint, UpdatedAt: c.now().UnixMilli()}
	c.trim(entries)
	return c.store(entries)
}

func (c *FileCache) Delete(_ context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := entries[identity]; !ok {
		return nil
	}
	delete(entries, identity)
	return c.store(entries)
}

func (c *FileCache) Prune(_ context.Context, keep []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	kept := keepSet(keep)
	before := len(entries)
	for id := range entries {
		if _, ok := kept[id]; !ok {
			delete(entries, id)
		}
	}
	if len(entries) == before {
		return nil
	}
	return c.store(entries)
}

// load reads and decodes the document. A missing file is an empty cache.
func (c *FileCache) load() (map[string]entry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fingerprint cache: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode fingerprint cache: %w", err)
	}

	switch doc.Version {
	case 1:
		var flat map[string]string
		if err := json.Unmarshal(doc.Entries, &flat); err != nil {
			return nil, fmt.Errorf("decode fingerprint cache v1 entries: %w", err)
		}
		entries := make(map[string]entry, len(flat))
		for id, fp := range flat {
			entries[id] = entry{Fingerprint: fp}
		}
		return entries, nil
	case currentVersion:
		var entries map[string]entry
		if err := json.Unmarshal(doc.Entries, &entries); err != nil {
			return nil, fmt.Errorf("decode fingerprint cache v2 entries: %w", err)
		}
		if entries == nil {
			entries = make(map[string]entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
}

// store writes entries as a version 2 document via a temp file and rename so
// readers never observe a partial file.
func (c *FileCache) store(entries map[string]entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode fingerprint entries: %w", err)
	}
	data, err := json.MarshalIndent(document{Version: currentVersion, Entries: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fingerprint cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fingerprint cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp fingerprint cache: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write fingerprint cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close fingerprint cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace fingerprint cache: %w", err)
	}
	return nil
}

func (c *FileCache) trim(entries map[string]entry) {
	if c.maxEntries <= 0 || len(entries) <= c.maxEntries {
		return
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := entries[ids[i]], entries[ids[j]]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids[c.maxEntries:] {
		delete(entries, id)
	}
}
