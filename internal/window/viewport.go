package window

import "math"

// Viewport describes a scrolling list whose rows all have roughly the same
// height.
type Viewport struct {
	Height             float64 `json:"viewport_height"`
	EstimatedRowHeight float64 `json:"row_height"`
	Gap                float64 `json:"gap"`
	OverscanRows       int     `json:"overscan"`
}

// Span is the half-open index range [Start, End) to render, plus the spacer
// heights that stand in for the rows outside it.
type Span struct {
	Start        int     `json:"start"`
	End          int     `json:"end"`
	TopSpacer    float64 `json:"top_spacer"`
	BottomSpacer float64 `json:"bottom_spacer"`
}

// Range computes the rows to render for scrollTop over count rows. The start
// is clamped so the tail of the list stays visible when scrollTop runs past
// the end.
func (v Viewport) Range(scrollTop float64, count int) Span {
	rowHeight := v.EstimatedRowHeight + v.Gap
	if rowHeight <= 0 {
		rowHeight = 1
	}
	count = max(count, 0)
	overscan := max(v.OverscanRows, 0)

	visible := max(1, int(math.Ceil(v.Height/rowHeight)))
	maxStart := max(0, count-visible)
	start := min(maxStart, max(0, int(math.Floor(scrollTop/rowHeight))-overscan))
	end := min(count, start+visible+overscan*2)

	return Span{
		Start:        start,
		End:          end,
		TopSpacer:    float64(start) * rowHeight,
		BottomSpacer: float64(count-end) * rowHeight,
	}
}

// Page aligns span to pageSize boundaries and returns the offset and limit
// that cover it with whole pages.
func Page(span Span, pageSize int) (offset, limit int) {
	if pageSize <= 0 || span.End <= span.Start {
		return span.Start, span.End - span.Start
	}
	offset = span.Start / pageSize * pageSize
	end := (span.End + pageSize - 1) / pageSize * pageSize
	return offset, end - offset
}
