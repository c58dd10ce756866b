// Package window keeps a contiguous, index-addressable slice of paginated
// search results while pages arrive out of order, and computes which rows a
// scrolling viewport needs.
package window

// Context identifies one result set. Pages from different contexts are never
// merged.
type Context struct {
	Identity   string `json:"identity"`
	Query      string `json:"query"`
	Generation uint64 `json:"generation"`
}

// ApplyResult says how a page was folded into the buffer.
type ApplyResult int

const (
	Replaced ApplyResult = iota
	Merged
	Discarded
)

func (r ApplyResult) String() string {
	switch r {
	case Merged:
		return "merge"
	case Discarded:
		return "discard"
	default:
		return "replace"
	}
}

// View is a copy of the buffer contents.
type View[T any] struct {
	Context     Context `json:"context"`
	LoadedStart int     `json:"loaded_start"`
	Rows        []T     `json:"items"`
	Total       int     `json:"total"`
}

// Buffer merges pages of one context into a single run of rows starting at
// an absolute offset. The zero value is not usable; call NewBuffer.
// A Buffer is not safe for concurrent use.
type Buffer[T any] struct {
	maxRows int

	populated bool
	ctx       Context
	start     int
	rows      []T
	total     int
}

// NewBuffer returns an empty buffer holding at most maxRows merged rows.
// A maxRows of zero or less disables the cap.
func NewBuffer[T any](maxRows int) *Buffer[T] {
	return &Buffer[T]{maxRows: maxRows}
}

// Apply folds a page of rows fetched at offset into the buffer and records
// total as the current match count.
//
// A page from a new context, a page that neither overlaps nor touches the
// buffered range, or a page whose union with it would exceed maxRows
// replaces the buffer. Otherwise the page is merged at its absolute
// position and its rows win where the ranges overlap.
func (b *Buffer[T]) Apply(ctx Context, offset int, rows []T, total int) ApplyResult {
	b.total = total

	if !b.populated || ctx != b.ctx {
		b.replace(ctx, offset, rows)
		return Replaced
	}

	end := b.start + len(b.rows)
	pageEnd := offset + len(rows)
	if offset > end || pageEnd < b.start {
		b.replace(ctx, offset, rows)
		return Replaced
	}

	lo := min(b.start, offset)
	hi := max(end, pageEnd)
	if b.maxRows > 0 && hi-lo > b.maxRows {
		b.replace(ctx, offset, rows)
		return Replaced
	}

	merged := make([]T, hi-lo)
	copy(merged[b.start-lo:], b.rows)
	copy(merged[offset-lo:], rows)
	b.start = lo
	b.rows = merged
	return Merged
}

func (b *Buffer[T]) replace(ctx Context, offset int, rows []T) {
	b.populated = true
	b.ctx = ctx
	b.start = offset
	b.rows = append([]T(nil), rows...)
}

// At returns the row at absolute index i if it is buffered.
func (b *Buffer[T]) At(i int) (T, bool) {
	var zero T
	if i < b.start || i >= b.start+len(b.rows) {
		return zero, false
	}
	return b.rows[i-b.start], true
}

// Reset empties the buffer.
func (b *Buffer[T]) Reset() {
	*b = Buffer[T]{maxRows: b.maxRows}
}

// View returns a copy of the buffer contents.
func (b *Buffer[T]) View() View[T] {
	return View[T]{
		Context:     b.ctx,
		LoadedStart: b.start,
		Rows:        append(make([]T, 0, len(b.rows)), b.rows...),
		Total:       b.total,
	}
}
