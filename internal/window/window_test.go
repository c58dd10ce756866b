package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctxA = Context{Identity: "/ssp::", Query: "", Generation: 1}

func rowsAt(offset, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("row%d", offset+i)
	}
	return out
}

func TestBuffer_MergesAdjacentPage(t *testing.T) {
	b := NewBuffer[string](100)

	assert.Equal(t, Replaced, b.Apply(ctxA, 0, rowsAt(0, 1), 10))
	assert.Equal(t, Merged, b.Apply(ctxA, 1, rowsAt(1, 1), 10))

	v := b.View()
	assert.Equal(t, 0, v.LoadedStart)
	assert.Equal(t, []string{"row0", "row1"}, v.Rows)
}

func TestBuffer_ReplacesOnGap(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 0, rowsAt(0, 1), 2000)

	assert.Equal(t, Replaced, b.Apply(ctxA, 1000, rowsAt(1000, 1), 2000))

	v := b.View()
	assert.Equal(t, 1000, v.LoadedStart)
	assert.Equal(t, []string{"row1000"}, v.Rows)
}

func TestBuffer_ContextChangeNeverMerges(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 0, rowsAt(0, 2), 10)

	next := ctxA
	next.Query = "emi"
	assert.Equal(t, Replaced, b.Apply(next, 0, []string{"emily"}, 1))

	v := b.View()
	assert.Equal(t, []string{"emily"}, v.Rows)
	assert.Equal(t, next, v.Context)

	// A new refresh generation is a new context too.
	regen := next
	regen.Generation++
	assert.Equal(t, Replaced, b.Apply(regen, 1, []string{"x"}, 2))
	assert.Equal(t, 1, b.View().LoadedStart)
}

func TestBuffer_NewRowsWinOnOverlap(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 0, []string{"a0", "a1", "a2"}, 5)
	b.Apply(ctxA, 2, []string{"b2", "b3"}, 5)

	assert.Equal(t, []string{"a0", "a1", "b2", "b3"}, b.View().Rows)

	// A page in front of the buffer keeps the tail.
	b.Apply(ctxA, 0, []string{"c0"}, 5)
	assert.Equal(t, []string{"c0", "a1", "b2", "b3"}, b.View().Rows)
}

func TestBuffer_PrependsAdjacentPage(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 10, rowsAt(10, 5), 50)
	assert.Equal(t, Merged, b.Apply(ctxA, 5, rowsAt(5, 5), 50))

	v := b.View()
	assert.Equal(t, 5, v.LoadedStart)
	assert.Equal(t, rowsAt(5, 10), v.Rows)
}

func TestBuffer_ReplacesWhenUnionExceedsCap(t *testing.T) {
	b := NewBuffer[string](10)
	b.Apply(ctxA, 0, rowsAt(0, 6), 100)

	assert.Equal(t, Replaced, b.Apply(ctxA, 6, rowsAt(6, 6), 100))
	v := b.View()
	assert.Equal(t, 6, v.LoadedStart)
	assert.Len(t, v.Rows, 6)
}

// TestBuffer_ArrivalOrderDoesNotMatter checks that pages keyed by absolute
// offset produce the same buffer in any completion order.
func TestBuffer_ArrivalOrderDoesNotMatter(t *testing.T) {
	pages := []int{0, 10, 20}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {1, 2, 0}}

	var want []string
	for _, order := range orders {
		b := NewBuffer[string](100)
		for _, i := range order {
			b.Apply(ctxA, pages[i], rowsAt(pages[i], 10), 30)
		}
		v := b.View()
		assert.Equal(t, 0, v.LoadedStart, "order %v", order)
		if want == nil {
			want = v.Rows
			continue
		}
		assert.Equal(t, want, v.Rows, "order %v", order)
	}
	assert.Equal(t, rowsAt(0, 30), want)
}

func TestBuffer_TotalChangeKeepsRows(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 0, rowsAt(0, 5), 50)
	b.Apply(ctxA, 5, rowsAt(5, 0), 3)

	v := b.View()
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, rowsAt(0, 5), v.Rows)
}

func TestBuffer_DoesNotAliasCallerRows(t *testing.T) {
	b := NewBuffer[string](100)
	page := []string{"a", "b"}
	b.Apply(ctxA, 0, page, 2)
	page[0] = "mutated"

	got, ok := b.At(0)
	require.True(t, ok)
	assert.Equal(t, "a", got)

	_, ok = b.At(2)
	assert.False(t, ok)
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer[string](100)
	b.Apply(ctxA, 3, rowsAt(3, 2), 10)
	b.Reset()

	// After a reset the same context replaces rather than merges.
	assert.Equal(t, Replaced, b.Apply(ctxA, 5, rowsAt(5, 1), 10))
}

func TestViewport_Range(t *testing.T) {
	v := Viewport{Height: 400, EstimatedRowHeight: 36, Gap: 4, OverscanRows: 2}

	tests := []struct {
		name      string
		scrollTop float64
		count     int
		want      Span
	}{
		{"top", 0, 100, Span{Start: 0, End: 14, TopSpacer: 0, BottomSpacer: 86 * 40}},
		{"middle", 2000, 100, Span{Start: 48, End: 62, TopSpacer: 48 * 40, BottomSpacer: 38 * 40}},
		{"past end clamps", 100000, 100, Span{Start: 90, End: 100, TopSpacer: 90 * 40, BottomSpacer: 0}},
		{"fewer rows than viewport", 0, 3, Span{Start: 0, End: 3, TopSpacer: 0, BottomSpacer: 0}},
		{"empty", 500, 0, Span{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Range(tt.scrollTop, tt.count))
		})
	}
}

func TestViewport_TinyViewportShowsOneRow(t *testing.T) {
	v := Viewport{Height: 0, EstimatedRowHeight: 20}
	assert.Equal(t, Span{Start: 5, End: 6, TopSpacer: 100, BottomSpacer: 80}, v.Range(100, 10))
}

func TestPage_AlignsToPageSize(t *testing.T) {
	offset, limit := Page(Span{Start: 48, End: 62}, 25)
	assert.Equal(t, 25, offset)
	assert.Equal(t, 50, limit)

	offset, limit = Page(Span{Start: 48, End: 62}, 0)
	assert.Equal(t, 48, offset)
	assert.Equal(t, 14, limit)
}

type pageFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (f *pageFetcher) Fetch(_ context.Context, _, query string, limit, offset int) ([]string, int, error) {
	f.mu.Lock()
	gate := f.gates[query]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if query == "fail" {
		return nil, 0, errors.New("boom")
	}
	rows := make([]string, limit)
	for i := range rows {
		rows[i] = fmt.Sprintf("%s%d", query, offset+i)
	}
	return rows, 100, nil
}

// TestSession_DiscardsLateResponseForOldQuery: a page for a query the user
// already replaced must not overwrite the newer query's rows.
func TestSession_DiscardsLateResponseForOldQuery(t *testing.T) {
	slow := make(chan struct{})
	f := &pageFetcher{gates: map[string]chan struct{}{"old": slow}}
	s := NewSession[string](f, 100)

	oldCtx := Context{Identity: "id", Query: "old"}
	newCtx := Context{Identity: "id", Query: "new"}

	done := make(chan ApplyResult, 1)
	go func() {
		_, res, err := s.Fetch(context.Background(), oldCtx, 0, 2)
		assert.NoError(t, err)
		done <- res
	}()

	// Wait until the old fetch has registered itself as latest.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.latest == oldCtx
	}, time.Second, time.Millisecond)

	v, res, err := s.Fetch(context.Background(), newCtx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, Replaced, res)
	assert.Equal(t, []string{"new0", "new1"}, v.Rows)

	close(slow)
	assert.Equal(t, Discarded, <-done)
	assert.Equal(t, []string{"new0", "new1"}, s.View().Rows)
}

func TestSession_MergesPagesOfSameContext(t *testing.T) {
	s := NewSession[string](&pageFetcher{}, 100)
	c := Context{Identity: "id", Query: "q"}

	_, _, err := s.Fetch(context.Background(), c, 0, 2)
	require.NoError(t, err)
	v, res, err := s.Fetch(context.Background(), c, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, Merged, res)
	assert.Equal(t, []string{"q0", "q1", "q2", "q3"}, v.Rows)
	assert.Equal(t, 100, v.Total)
}

func TestSession_FetchErrorLeavesBuffer(t *testing.T) {
	s := NewSession[string](&pageFetcher{}, 100)

	_, _, err := s.Fetch(context.Background(), Context{Query: "q"}, 0, 2)
	require.NoError(t, err)
	_, _, err = s.Fetch(context.Background(), Context{Query: "fail"}, 0, 2)
	require.Error(t, err)

	assert.Equal(t, []string{"q0", "q1"}, s.View().Rows)
}
