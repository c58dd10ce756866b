package window

import (
	"context"
	"sync"

	"github.com/finelagusaz/ghost-launcher/internal/metrics"
)

// Fetcher reads one page of a result set.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, identity, query string, limit, offset int) (rows []T, total int, err error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, identity, query string, limit, offset int) ([]T, int, error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, identity, query string, limit, offset int) ([]T, int, error) {
	return f(ctx, identity, query, limit, offset)
}

// Session owns the buffer of one consumer. Pages for a context that is no
// longer the latest requested one are discarded when they arrive.
// It is safe for concurrent use.
type Session[T any] struct {
	fetcher Fetcher[T]

	mu     sync.Mutex
	buf    *Buffer[T]
	latest Context
}

// NewSession creates a session whose buffer holds at most maxRows rows.
func NewSession[T any](fetcher Fetcher[T], maxRows int) *Session[T] {
	return &Session[T]{fetcher: fetcher, buf: NewBuffer[T](maxRows)}
}

// Fetch reads limit rows at offset for c and folds them into the buffer.
// The returned view reflects the buffer after the page was applied or
// discarded.
func (s *Session[T]) Fetch(ctx context.Context, c Context, offset, limit int) (View[T], ApplyResult, error) {
	s.mu.Lock()
	s.latest = c
	s.mu.Unlock()

	rows, total, err := s.fetcher.Fetch(ctx, c.Identity, c.Query, limit, offset)
	if err != nil {
		return View[T]{}, Discarded, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := Discarded
	if c == s.latest {
		result = s.buf.Apply(c, offset, rows, total)
	}
	metrics.WindowFetchTotal.WithLabelValues(result.String()).Inc()
	return s.buf.View(), result, nil
}

// View returns the current buffer contents.
func (s *Session[T]) View() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.View()
}
