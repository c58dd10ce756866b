package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finelagusaz/ghost-launcher/internal/ghost"
	"github.com/finelagusaz/ghost-launcher/internal/metrics"
)

// upsertColumns is the number of bound values per row in an upsert statement.
const upsertColumns = 14

// upsertChunkRows keeps one upsert statement under maxBoundParams.
const upsertChunkRows = maxBoundParams / upsertColumns

// ReplaceStats describes the writes one Replace call issued.
type ReplaceStats struct {
	Incoming    int
	Upserted    int
	Unchanged   int
	Deleted     int
	FullRewrite bool
}

// Replace makes the stored rows for identity equal to items. Rows whose key
// and row fingerprint already match are left untouched; stored rows whose
// key is absent from items are deleted after the upserts. Items sharing a
// key are collapsed to the last one.
//
// Above the exclusion-key threshold the identity is cleared and every row
// is inserted again.
func (s *Store) Replace(ctx context.Context, identity string, items []ghost.Ghost) (ReplaceStats, error) {
	now := s.now().UnixMilli()
	rows := prepareRows(identity, items, now)
	stats := ReplaceStats{Incoming: len(rows)}

	if len(rows) > s.maxExclusionKeys {
		return s.rewrite(ctx, identity, rows, now, stats)
	}

	existing, err := s.rowFingerprints(ctx, identity)
	if err != nil {
		return stats, err
	}

	changed := rows[:0:0]
	for _, r := range rows {
		if fp, ok := existing[r.ItemKey]; ok && fp == r.RowFingerprint {
			stats.Unchanged++
			continue
		}
		changed = append(changed, r)
	}

	if err := s.upsert(ctx, changed); err != nil {
		return stats, err
	}
	stats.Upserted = len(changed)

	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.ItemKey
	}
	deleted, err := s.deleteExcept(ctx, identity, keys)
	if err != nil {
		return stats, err
	}
	stats.Deleted = deleted

	if err := s.touch(ctx, identity, now); err != nil {
		return stats, err
	}

	metrics.CatalogRowsUpserted.Add(float64(stats.Upserted))
	metrics.CatalogRowsUnchanged.Add(float64(stats.Unchanged))
	metrics.CatalogRowsDeleted.Add(float64(stats.Deleted))
	return stats, nil
}

func (s *Store) rewrite(ctx context.Context, identity string, rows []Row, now int64, stats ReplaceStats) (ReplaceStats, error) {
	stats.FullRewrite = true

	res, err := s.db.ExecContext(ctx, `DELETE FROM ghosts WHERE identity = ?`, identity)
	if err != nil {
		return stats, fmt.Errorf("clear identity %q: %w", identity, err)
	}
	n, _ := res.RowsAffected()
	stats.Deleted = int(n)

	if err := s.upsert(ctx, rows); err != nil {
		return stats, err
	}
	stats.Upserted = len(rows)

	if err := s.touch(ctx, identity, now); err != nil {
		return stats, err
	}

	metrics.CatalogFullRewrites.Inc()
	metrics.CatalogRowsUpserted.Add(float64(stats.Upserted))
	metrics.CatalogRowsDeleted.Add(float64(stats.Deleted))
	return stats, nil
}

// prepareRows derives keys, fingerprints and folded columns. The result keeps
// the first position of each key and the last item seen for it.
func prepareRows(identity string, items []ghost.Ghost, now int64) []Row {
	rows := make([]Row, 0, len(items))
	index := make(map[string]int, len(items))
	for _, g := range items {
		r := Row{
			Ghost:               g,
			Identity:            identity,
			ItemKey:             g.Key(),
			RowFingerprint:      g.Fingerprint(),
			NameFolded:          ghost.Fold(g.Name),
			DirectoryNameFolded: ghost.Fold(g.DirectoryName),
			UpdatedAt:           time.UnixMilli(now),
		}
		if i, ok := index[r.ItemKey]; ok {
			rows[i] = r
			continue
		}
		index[r.ItemKey] = len(rows)
		rows = append(rows, r)
	}
	return rows
}

// rowFingerprints loads item key to row fingerprint for identity. The cursor
// is fully drained before returning so the single connection is free for the
// writes that follow.
func (s *Store) rowFingerprints(ctx context.Context, identity string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_key, row_fingerprint FROM ghosts WHERE identity = ?`, identity)
	if err != nil {
		return nil, fmt.Errorf("load row fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, fp string
		if err := rows.Scan(&key, &fp); err != nil {
			return nil, fmt.Errorf("scan row fingerprint: %w", err)
		}
		out[key] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate row fingerprints: %w", err)
	}
	return out, nil
}

func (s *Store) upsert(ctx context.Context, rows []Row) error {
	for start := 0; start < len(rows); start += upsertChunkRows {
		end := min(start+upsertChunkRows, len(rows))
		chunk := rows[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO ghosts (
			identity, item_key, row_fingerprint, name, craftman, directory_name, path, source,
			name_folded, directory_name_folded, thumbnail_path, thumbnail_use_self_alpha,
			thumbnail_kind, updated_at) VALUES `)
		args := make([]any, 0, len(chunk)*upsertColumns)
		for i, r := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			b.WriteString(placeholders(upsertColumns))
			b.WriteString(")")
			args = append(args,
				r.Identity, r.ItemKey, r.RowFingerprint, r.Name, r.Craftman, r.DirectoryName,
				r.Path, r.Source, r.NameFolded, r.DirectoryNameFolded, r.ThumbnailPath,
				r.ThumbnailUseSelfAlpha, r.ThumbnailKind, r.UpdatedAt.UnixMilli(),
			)
		}
		b.WriteString(` ON CONFLICT (identity, item_key) DO UPDATE SET
			row_fingerprint          = excluded.row_fingerprint,
			name                     = excluded.name,
			craftman                 = excluded.craftman,
			directory_name           = excluded.directory_name,
			path                     = excluded.path,
			source                   = excluded.source,
			name_folded              = excluded.name_folded,
			directory_name_folded    = excluded.directory_name_folded,
			thumbnail_path           = excluded.thumbnail_path,
			thumbnail_use_self_alpha = excluded.thumbnail_use_self_alpha,
			thumbnail_kind           = excluded.thumbnail_kind,
			updated_at               = excluded.updated_at`)

		if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("upsert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// deleteExcept removes rows of identity whose key is not in keep. The caller
// guarantees len(keep) fits next to the identity parameter.
func (s *Store) deleteExcept(ctx context.Context, identity string, keep []string) (int, error) {
	query := `DELETE FROM ghosts WHERE identity = ?`
	args := make([]any, 0, len(keep)+1)
	args = append(args, identity)
	if len(keep) > 0 {
		query += ` AND item_key NOT IN (` + placeholders(len(keep)) + `)`
		for _, k := range keep {
			args = append(args, k)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
