package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRequestValidate(t *testing.T) {
	valid := FetchRequest{Ticker: "BTCUSD", Interval: "1D", StartMs: 1, EndMs: 2, SliceWidthMs: MillisPerDay}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*FetchRequest)
		field  string
	}{
		{"empty ticker", func(r *FetchRequest) { r.Ticker = " " }, "ticker"},
		{"empty interval", func(r *FetchRequest) { r.Interval = "" }, "interval"},
		{"zero width", func(r *FetchRequest) { r.SliceWidthMs = 0 }, "slice_width"},
		{"start after end", func(r *FetchRequest) { r.StartMs = 3 }, "start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestFetchRequestSlices(t *testing.T) {
	const start = int64(1604188801000)

	tests := []struct {
		name  string
		span  int64
		count int
	}{
		{"start equals end", 0, 1},
		{"less than one width", 1000, 1},
		{"exactly one width", MillisPerDay, 1},
		{"one width plus one ms", MillisPerDay + 1, 2},
		{"sixty one days", 61*MillisPerDay + 1, 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := FetchRequest{Ticker: "BTCUSD", Interval: "1D", StartMs: start, EndMs: start + tt.span, SliceWidthMs: MillisPerDay}

			assert.Equal(t, tt.count, req.SliceCount())

			slices := []Slice{req.FirstSlice()}
			for len(slices) < req.SliceCount() {
				slices = append(slices, req.NextSlice(slices[len(slices)-1]))
			}

			assert.Equal(t, start, slices[0].FromMs)
			for i := 1; i < len(slices); i++ {
				assert.Equal(t, slices[i-1].ToMs, slices[i].FromMs)
				assert.Equal(t, i, slices[i].Index)
			}
			last := slices[len(slices)-1]
			assert.GreaterOrEqual(t, last.ToMs, req.EndMs)
			assert.Equal(t, MillisPerDay, last.ToMs-last.FromMs)
		})
	}
}

func TestFetchRequestSliceCountHugeRange(t *testing.T) {
	req := FetchRequest{Ticker: "BTCUSD", Interval: "1D", StartMs: 0, EndMs: 1 << 62, SliceWidthMs: 1}
	require.NoError(t, req.Validate())

	assert.Equal(t, 1<<62, req.SliceCount())

	first := req.FirstSlice()
	assert.Equal(t, Slice{Index: 0, FromMs: 0, ToMs: 1}, first)
	assert.Equal(t, Slice{Index: 1, FromMs: 1, ToMs: 2}, req.NextSlice(first))
}
