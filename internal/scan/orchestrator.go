package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finelagusaz/ghost-launcher/internal/catalog"
	"github.com/finelagusaz/ghost-launcher/internal/fingerprint"
	"github.com/finelagusaz/ghost-launcher/internal/ghost"
	"github.com/finelagusaz/ghost-launcher/internal/metrics"
)

// Refresh modes.
const (
	ModeAuto  = "auto"
	ModeForce = "force"
)

// Catalog is the part of the catalog store the orchestrator writes through.
type Catalog interface {
	Replace(ctx context.Context, identity string, items []ghost.Ghost) (catalog.ReplaceStats, error)
	Exists(ctx context.Context, identity string) (bool, error)
	Evict(ctx context.Context, current string, maxGenerations, ttlDays int) ([]string, error)
}

// Retention bounds how many configuration identities the catalog keeps.
type Retention struct {
	MaxGenerations int
	TTLDays        int
}

// DefaultRetention returns five generations kept for thirty days.
func DefaultRetention() Retention {
	return Retention{MaxGenerations: 5, TTLDays: 30}
}

// Request describes one refresh.
type Request struct {
	Root    string
	Folders []string
	Force   bool
}

// Identity returns the configuration identity of the request.
func (r Request) Identity() string {
	return ghost.Identity(r.Root, r.Folders)
}

// Mode returns ModeForce or ModeAuto.
func (r Request) Mode() string {
	if r.Force {
		return ModeForce
	}
	return ModeAuto
}

// Outcome reports what one Refresh call did.
type Outcome struct {
	Identity string `json:"identity"`
	Mode     string `json:"mode"`
	Seq      uint64 `json:"seq"`

	// Coalesced is set when an identical refresh was already running. Nothing
	// else happened.
	Coalesced bool `json:"coalesced"`
	// Superseded is set when a newer refresh was issued before this one
	// finished. Its result was not applied to State.
	Superseded bool `json:"superseded"`
	// Skipped is set when the fingerprint matched a non-empty catalog.
	Skipped bool `json:"skipped"`
	Written bool `json:"written"`

	Fingerprint string               `json:"fingerprint,omitempty"`
	Items       int                  `json:"items"`
	Stats       catalog.ReplaceStats `json:"stats"`
	Survivors   []string             `json:"survivors,omitempty"`
	Generation  uint64               `json:"generation"`
}

// State is the loading and error state shown by the UI.
type State struct {
	Identity string `json:"identity"`
	Loading  bool   `json:"loading"`
	Error    string `json:"error,omitempty"`
	// Generation increases every time an applied refresh wrote the catalog.
	Generation    uint64    `json:"generation"`
	LastRefreshAt time.Time `json:"last_refresh_at"`
	LastSkipped   bool      `json:"last_skipped"`
}

// Orchestrator runs at most one Scanner call per identity and mode at a time
// and applies only the results of the most recently issued refresh.
// It is safe for concurrent use.
type Orchestrator struct {
	scanner   Scanner
	catalog   Catalog
	cache     fingerprint.Cache
	retention Retention
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	seq      uint64
	state    State

	// writeMu serializes the write phase so the supersession check and the
	// catalog write are not interleaved with another refresh's write.
	writeMu sync.Mutex
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(scanner Scanner, cat Catalog, cache fingerprint.Cache, retention Retention) *Orchestrator {
	return &Orchestrator{
		scanner:   scanner,
		catalog:   cat,
		cache:     cache,
		retention: retention,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Refresh scans the requested configuration and, unless the fingerprint shows
// nothing changed, replaces the catalog rows for its identity.
//
// A call matching a refresh already in flight returns immediately with
// Outcome.Coalesced. A call overtaken by a newer one returns
// Outcome.Superseded and a nil error; its failure, if any, is only logged.
func (o *Orchestrator) Refresh(ctx context.Context, req Request) (Outcome, error) {
	identity := req.Identity()
	mode := req.Mode()
	key := identity + "#" + mode
	out := Outcome{Identity: identity, Mode: mode}

	o.mu.Lock()
	if _, running := o.inFlight[key]; running {
		o.mu.Unlock()
		out.Coalesced = true
		metrics.RefreshTotal.WithLabelValues(mode, "coalesced").Inc()
		slog.Debug("refresh coalesced", "identity", identity, "mode", mode)
		return out, nil
	}
	o.inFlight[key] = struct{}{}
	o.seq++
	out.Seq = o.seq
	o.state.Identity = identity
	o.state.Loading = true
	o.state.Error = ""
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inFlight, key)
		o.mu.Unlock()
	}()

	slog.Info("refresh started", "identity", identity, "mode", mode, "seq", out.Seq)
	out, err := o.run(ctx, req, out)
	return o.finish(out, err)
}

func (o *Orchestrator) run(ctx context.Context, req Request, out Outcome) (Outcome, error) {
	if req.Root == "" {
		return out, ErrNoRoot
	}

	var (
		cached     string
		haveCached bool
	)
	if !req.Force {
		fp, ok, err := o.cache.Get(ctx, out.Identity)
		if err != nil {
			slog.Warn("fingerprint lookup failed; scanning as if uncached",
				"identity", out.Identity, "error", err)
		} else {
			cached, haveCached = fp, ok
		}
	}

	metrics.RefreshInFlight.Inc()
	start := time.Now()
	res, err := o.scanner.Scan(ctx, req.Root, ghost.AdditionalFolders(req.Folders))
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	metrics.RefreshInFlight.Dec()
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrScanFailure, err)
	}
	out.Fingerprint = res.Fingerprint
	out.Items = len(res.Items)

	if haveCached && cached == res.Fingerprint {
		exists, err := o.catalog.Exists(ctx, out.Identity)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrStoreRead, err)
		}
		if exists {
			out.Skipped = true
			return out, nil
		}
		slog.Info("fingerprint unchanged but catalog is empty; writing",
			"identity", out.Identity)
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	if o.superseded(out.Seq) {
		out.Superseded = true
		return out, nil
	}

	stats, err := o.catalog.Replace(ctx, out.Identity, res.Items)
	if err != nil {
		o.invalidate(ctx, out.Identity)
		return out, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	out.Written = true
	out.Stats = stats

	if err := o.cache.Set(ctx, out.Identity, res.Fingerprint); err != nil {
		o.invalidate(ctx, out.Identity)
		return out, fmt.Errorf("%w: record fingerprint: %w", ErrStoreWrite, err)
	}

	survivors, err := o.catalog.Evict(ctx, out.Identity, o.retention.MaxGenerations, o.retention.TTLDays)
	if err != nil {
		slog.Warn("catalog eviction failed", "identity", out.Identity, "error", err)
		return out, nil
	}
	out.Survivors = survivors
	if err := o.cache.Prune(ctx, survivors); err != nil {
		slog.Warn("fingerprint prune failed", "identity", out.Identity, "error", err)
	}
	return out, nil
}

// invalidate drops the cached fingerprint after a failed write so the next
// non-forced refresh cannot skip over a partially written catalog.
func (o *Orchestrator) invalidate(ctx context.Context, identity string) {
	if err := o.cache.Delete(ctx, identity); err != nil {
		slog.Warn("fingerprint invalidation failed", "identity", identity, "error", err)
	}
}

func (o *Orchestrator) superseded(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return seq != o.seq
}

// finish applies out to State when it is still the latest refresh.
func (o *Orchestrator) finish(out Outcome, err error) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if out.Seq != o.seq {
		out.Superseded = true
		if err != nil {
			slog.Warn("superseded refresh failed", "identity", out.Identity, "seq", out.Seq, "error", err)
		}
		metrics.RefreshTotal.WithLabelValues(out.Mode, "superseded").Inc()
		slog.Info("refresh superseded", "identity", out.Identity, "seq", out.Seq, "latest", o.seq)
		return out, nil
	}

	o.state.Loading = false
	o.state.LastRefreshAt = o.now()
	if err != nil {
		o.state.Error = UserMessage(err)
		metrics.RefreshTotal.WithLabelValues(out.Mode, "failed").Inc()
		slog.Error("refresh failed", "identity", out.Identity, "mode", out.Mode, "seq", out.Seq, "error", err)
		return out, err
	}

	o.state.Error = ""
	o.state.LastSkipped = out.Skipped
	if out.Written {
		o.state.Generation++
	}
	out.Generation = o.state.Generation

	outcome := "written"
	if out.Skipped {
		outcome = "skipped"
	}
	metrics.RefreshTotal.WithLabelValues(out.Mode, outcome).Inc()
	slog.Info("refresh finished", "identity", out.Identity, "mode", out.Mode, "seq", out.Seq,
		"outcome", outcome, "items", out.Items,
		"upserted", out.Stats.Upserted, "unchanged", out.Stats.Unchanged, "deleted", out.Stats.Deleted)
	return out, nil
}
