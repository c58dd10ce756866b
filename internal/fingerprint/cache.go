// Package fingerprint stores the last Scanner fingerprint persisted for each
// configuration identity.
package fingerprint

import (
	"context"
	"errors"
)

// ErrUnsupportedVersion is returned when a stored cache document carries a
// version this build cannot read or migrate.
var ErrUnsupportedVersion = errors.New("unsupported fingerprint cache version")

// Cache maps a configuration identity to its last persisted fingerprint.
type Cache interface {
	// Get returns the fingerprint for identity and whether one was found.
	Get(ctx context.Context, identity string) (string, bool, error)
	// Set records fingerprint for identity, replacing any previous value.
	Set(ctx context.Context, identity, fingerprint string) error
	// Delete removes the entry for identity. Deleting a missing entry is not
	// an error.
	Delete(ctx context.Context, identity string) error
	// Prune removes every entry whose identity is not in keep.
	Prune(ctx context.Context, keep []string) error
}

func keepSet(keep []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		m[id] = struct{}{}
	}
	return m
}
