// Package catalog is the local secondary index of Scanner results. Rows are
// partitioned by configuration identity and keyed inside a partition by the
// item identity key.
//
// Every statement runs in auto-commit mode. A multi-statement operation that
// fails half way leaves at worst a superset of rows for the identity, which
// the next successful Replace removes.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finelagusaz/ghost-launcher/internal/ghost"
)

// ErrInvalidRange is returned by Search for a negative limit or offset.
var ErrInvalidRange = errors.New("invalid search range")

// maxBoundParams is the bound-parameter ceiling assumed for one statement.
// It matches SQLite's historical SQLITE_MAX_VARIABLE_NUMBER default.
const maxBoundParams = 999

// Row is one stored catalog item.
type Row struct {
	ghost.Ghost
	Identity            string    `json:"-"`
	ItemKey             string    `json:"item_key"`
	RowFingerprint      string    `json:"row_fingerprint"`
	NameFolded          string    `json:"name_folded"`
	DirectoryNameFolded string    `json:"directory_name_folded"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Store persists catalog rows in SQLite.
type Store struct {
	db               *sql.DB
	now              func() time.Time
	maxExclusionKeys int
	reads            singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for updated_at and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxExclusionKeys sets how many incoming items Replace accepts before it
// stops deleting by exclusion list and rewrites the identity instead.
func WithMaxExclusionKeys(n int) Option {
	return func(s *Store) {
		if n > 0 && n < maxBoundParams {
			s.maxExclusionKeys = n
		}
	}
}

// New creates a Store over an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: time.Now,
		// One parameter is taken by the identity itself.
		maxExclusionKeys: maxBoundParams - 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether at least one row is stored for identity.
func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ghosts WHERE identity = ?)`, identity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check catalog rows for %q: %w", identity, err)
	}
	return exists, nil
}

// touch records that identity was refreshed at the current time, whether or
// not any of its rows changed.
func (s *Store) touch(ctx context.Context, identity string, at int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_identities (identity, touched_at)
		VALUES (?, ?)
		ON CONFLICT (identity) DO UPDATE SET touched_at = excluded.touched_at`,
		identity, at)
	if err != nil {
		return fmt.Errorf("touch identity %q: %w", identity, err)
	}
	return nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
