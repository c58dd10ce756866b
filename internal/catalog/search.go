package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finelagusaz/ghost-launcher/internal/ghost"
	"github.com/finelagusaz/ghost-launcher/internal/metrics"
)

// Page is one slice of search results plus the full match count.
type Page struct {
	Rows  []Row
	Total int
}

const matchClause = `identity = ? AND (? = '' OR instr(name_folded, ?) > 0 OR instr(directory_name_folded, ?) > 0)`

// Search returns rows of identity whose folded name or folded directory name
// contains the folded query, ordered by folded name and then insertion order.
// Surrounding whitespace in query is ignored; an empty query matches every
// row. Total counts all matches regardless of limit and offset.
//
// Identical concurrent calls share one database read, so the returned Rows
// slice must be treated as read-only.
func (s *Store) Search(ctx context.Context, identity, query string, limit, offset int) (Page, error) {
	if limit < 0 || offset < 0 {
		return Page{}, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidRange, limit, offset)
	}
	folded := ghost.Fold(strings.TrimSpace(query))

	key := strings.Join([]string{identity, folded, strconv.Itoa(limit), strconv.Itoa(offset)}, "\x00")
	// The shared read outlives any one caller; each caller waits on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(key, func() (any, error) {
		start := time.Now()
		page, err := s.search(shared, identity, folded, limit, offset)
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SearchTotal.WithLabelValues("error").Inc()
			return Page{}, err
		}
		metrics.SearchTotal.WithLabelValues("ok").Inc()
		return page, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("search: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return Page{}, res.Err
	}
	return res.Val.(Page), nil
}

func (s *Store) search(ctx context.Context, identity, folded string, limit, offset int) (Page, error) {
	var page Page
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ghosts WHERE `+matchClause,
		identity, folded, folded, folded,
	).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count search results: %w", err)
	}

	page.Rows = []Row{}
	if limit == 0 || offset >= page.Total {
		return page, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rowColumns+`
		FROM ghosts
		WHERE `+matchClause+`
		ORDER BY name_folded ASC, id ASC
		LIMIT ? OFFSET ?`,
		identity, folded, folded, folded, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("query search results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan search row: %w", err)
		}
		page.Rows = append(page.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate search results: %w", err)
	}
	return page, nil
}

// Get returns the row stored for itemKey under identity.
func (s *Store) Get(ctx context.Context, identity, itemKey string) (Row, bool, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM ghosts WHERE identity = ? AND item_key = ?`,
		identity, itemKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("get catalog row %q: %w", itemKey, err)
	}
	return r, true, nil
}

const rowColumns = `identity, item_key, row_fingerprint, name, craftman, directory_name, path, source,
	name_folded, directory_name_folded, thumbnail_path, thumbnail_use_self_alpha,
	thumbnail_kind, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (Row, error) {
	var (
		r         Row
		updatedAt int64
	)
	if err := sc.Scan(
		&r.Identity, &r.ItemKey, &r.RowFingerprint, &r.Name, &r.Craftman, &r.DirectoryName,
		&r.Path, &r.Source, &r.NameFolded, &r.DirectoryNameFolded, &r.ThumbnailPath,
		&r.ThumbnailUseSelfAlpha, &r.ThumbnailKind, &updatedAt,
	); err != nil {
		return Row{}, err
	}
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return r, nil
}
