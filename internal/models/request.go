package models

import (
	"fmt"
	"strings"
)

// MillisPerDay is the default slice width.
const MillisPerDay int64 = 86_400_000

// FetchRequest describes one complete download. It is built once and never mutated.
type FetchRequest struct {
	Ticker       string
	Interval     string
	StartMs      int64
	EndMs        int64
	SliceWidthMs int64
}

// Slice is one inclusive [FromMs, ToMs] request window.
type Slice struct {
	Index  int
	FromMs int64
	ToMs   int64
}

// ValidationError reports a FetchRequest field that cannot be used.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the request can be paginated.
func (r FetchRequest) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return &ValidationError{Field: "ticker", Message: "ticker cannot be empty"}
	}
	if strings.TrimSpace(r.Interval) == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}
	if r.SliceWidthMs <= 0 {
		return &ValidationError{Field: "slice_width", Message: "slice width must be positive"}
	}
	if r.StartMs > r.EndMs {
		return &ValidationError{
			Field:   "start",
			Message: fmt.Sprintf("start %d is after end %d", r.StartMs, r.EndMs),
		}
	}
	return nil
}

// SliceCount is max(1, ceil((EndMs-StartMs)/SliceWidthMs)).
func (r FetchRequest) SliceCount() int {
	span := r.EndMs - r.StartMs
	if span <= 0 || r.SliceWidthMs <= 0 {
		return 1
	}
	n := span / r.SliceWidthMs
	if span%r.SliceWidthMs != 0 {
		n++
	}
	return int(n)
}

// FirstSlice is the window a download of r starts with.
func (r FetchRequest) FirstSlice() Slice {
	return Slice{Index: 0, FromMs: r.StartMs, ToMs: r.StartMs + r.SliceWidthMs}
}

// NextSlice is the window after s. It starts where s ended.
func (r FetchRequest) NextSlice(s Slice) Slice {
	return Slice{Index: s.Index + 1, FromMs: s.ToMs, ToMs: s.ToMs + r.SliceWidthMs}
}
