package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/finelagusaz/ghost-launcher/internal/metrics"
)

// Recency is the most recent write time seen for one identity.
type Recency struct {
	Identity string
	LastUsed time.Time
}

// Identities lists every identity with stored rows or a touch record, most
// recently used first. Ties are ordered by identity.
func (s *Store) Identities(ctx context.Context) ([]Recency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, MAX(ts) AS last_used
		FROM (
			SELECT identity, MAX(updated_at) AS ts FROM ghosts GROUP BY identity
			UNION ALL
			SELECT identity, touched_at AS ts FROM catalog_identities
		)
		GROUP BY identity
		ORDER BY last_used DESC, identity ASC`)
	if err != nil {
		return nil, fmt.Errorf("rank identities: %w", err)
	}
	defer rows.Close()

	var out []Recency
	for rows.Next() {
		var (
			r  Recency
			ms int64
		)
		if err := rows.Scan(&r.Identity, &ms); err != nil {
			return nil, fmt.Errorf("scan identity recency: %w", err)
		}
		r.LastUsed = time.UnixMilli(ms)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Evict keeps current plus at most maxGenerations-1 other identities, chosen
// by recency, whose last use is within ttlDays. Everything else is deleted.
// A ttlDays of zero or less disables the age check.
//
// The returned survivors are ordered by recency and always contain current,
// even when it has no rows yet.
func (s *Store) Evict(ctx context.Context, current string, maxGenerations, ttlDays int) ([]string, error) {
	ranked, err := s.Identities(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if ttlDays > 0 {
		cutoff = s.now().Add(-time.Duration(ttlDays) * 24 * time.Hour)
	}
	slots := maxGenerations - 1

	var (
		keep        []string
		drop        []string
		seenCurrent bool
		rank        int
	)
	for _, r := range ranked {
		if r.Identity == current {
			keep = append(keep, r.Identity)
			seenCurrent = true
			continue
		}
		fresh := cutoff.IsZero() || !r.LastUsed.Before(cutoff)
		if rank < slots && fresh {
			keep = append(keep, r.Identity)
		} else {
			drop = append(drop, r.Identity)
		}
		rank++
	}
	if !seenCurrent {
		keep = append(keep, current)
	}

	if err := s.deleteIdentities(ctx, drop); err != nil {
		return nil, err
	}
	metrics.CatalogEvictedIdentities.Add(float64(len(drop)))
	return keep, nil
}

func (s *Store) deleteIdentities(ctx context.Context, identities []string) error {
	for start := 0; start < len(identities); start += maxBoundParams {
		end := min(start+maxBoundParams, len(identities))
		chunk := identities[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		in := placeholders(len(chunk))

		if _, err := s.db.ExecContext(ctx, `DELETE FROM ghosts WHERE identity IN (`+in+`)`, args...); err != nil {
			return fmt.Errorf("delete evicted rows: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_identities WHERE identity IN (`+in+`)`, args...); err != nil {
			return fmt.Errorf("delete evicted identities: %w", err)
		}
	}
	return nil
}
