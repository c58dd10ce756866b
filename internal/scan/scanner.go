// Package scan decides when the external Scanner must run and routes its
// results into the catalog.
package scan

import (
	"context"
	"errors"
	"strings"

	"github.com/finelagusaz/ghost-launcher/internal/ghost"
)

// Result is one complete Scanner response.
type Result struct {
	Items       []ghost.Ghost
	Fingerprint string
}

// Scanner enumerates every item under a root path and its additional
// folders. The fingerprint must be equal across scans of unchanged state.
type Scanner interface {
	Scan(ctx context.Context, root string, folders []string) (Result, error)
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(ctx context.Context, root string, folders []string) (Result, error)

func (f ScannerFunc) Scan(ctx context.Context, root string, folders []string) (Result, error) {
	return f(ctx, root, folders)
}

// Error taxonomy. Errors returned by Refresh match exactly one of these via
// errors.Is.
var (
	ErrNoRoot      = errors.New("no root folder configured")
	ErrScanFailure = errors.New("scanner failed")
	ErrStoreWrite  = errors.New("catalog write failed")
	ErrStoreRead   = errors.New("catalog read failed")
)

// UserMessage turns a Refresh error into text the user can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRoot):
		return "No root folder is configured. Choose the root folder and reload."
	case errors.Is(err, ErrScanFailure):
		return "Could not read ghosts from the configured folders. Check the root folder and additional folders, then reload. (" + cause(err) + ")"
	case errors.Is(err, ErrStoreWrite):
		return "Could not save the ghost list to the local catalog. Reload to try again. (" + cause(err) + ")"
	case errors.Is(err, ErrStoreRead):
		return "Could not read the local catalog. Reload to try again. (" + cause(err) + ")"
	default:
		return err.Error()
	}
}

// cause strips the taxonomy prefix from a wrapped error message.
func cause(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrScanFailure, ErrStoreWrite, ErrStoreRead} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
