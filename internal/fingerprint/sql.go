package fingerprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// maxDeleteBatch bounds the IN list of one delete statement.
const maxDeleteBatch = 500

// SQLCache keeps fingerprints in the catalog database's fingerprints table.
type SQLCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLCache returns a Cache backed by the fingerprints table of db.
func NewSQLCache(db *sql.DB) *SQLCache {
	return &SQLCache{db: db, now: time.Now}
}

func (c *SQLCache) Get(ctx context.Context, identity string) (string, bool, error) {
	var fp string
	err := c.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM fingerprints WHERE identity = ?`, identity,
	).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get fingerprint for %q: %w", identity, err)
	}
	return fp, true, nil
}

func (c *SQLCache) Set(ctx context.Context, identity, fingerprint string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fingerprints (identity, fingerprint, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			updated_at  = excluded.updated_at`,
		identity, fingerprint, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set fingerprint for %q: %w", identity, err)
	}
	return nil
}

func (c *SQLCache) Delete(ctx context.Context, identity string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete fingerprint for %q: %w", identity, err)
	}
	return nil
}

func (c *SQLCache) Prune(ctx context.Context, keep []string) error {
	rows, err := c.db.QueryContext(ctx, `SELECT identity FROM fingerprints`)
	if err != nil {
		return fmt.Errorf("list fingerprints: %w", err)
	}
	kept := keepSet(keep)
	var drop []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan fingerprint identity: %w", err)
		}
		if _, ok := kept[id]; !ok {
			drop = append(drop, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate fingerprints: %w", err)
	}
	rows.Close()

	for start := 0; start < len(drop); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(drop))
		chunk := drop[start:end]
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		if _, err := c.db.ExecContext(ctx,
			`DELETE FROM fingerprints WHERE identity IN (`+marks+`)`, chunk...); err != nil {
			return fmt.Errorf("prune fingerprints: %w", err)
		}
	}
	return nil
}
