// Package models provides the data structures shared by the candlestick downloader:
// exchange-exact numeric values, candle records with their wire layout, per-slice
// batches, the accumulated download result and the immutable fetch request.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Positions of each field inside the 6-element array the candle endpoint returns.
const (
	WireTimestamp = 0
	WireClose     = 1
	WireOpen      = 2
	WireHigh      = 3
	WireLow       = 4
	WireVolume    = 5

	WireFields = 6
)

// DateTimeLayout renders candle times for people.
const DateTimeLayout = "2006-01-02 15:04:05 UTC"

// WireTuple is one candle in exchange order: timestamp, close, open, high, low, volume.
type WireTuple [WireFields]Number

// CandleRecord is one candle in logical order.
type CandleRecord struct {
	Timestamp Number `json:"timestamp"`
	Open      Number `json:"open"`
	Close     Number `json:"close"`
	High      Number `json:"high"`
	Low       Number `json:"low"`
	Volume    Number `json:"volume"`
}

// FromWireTuple remaps an exchange tuple into logical field order.
func FromWireTuple(t WireTuple) CandleRecord {
	return CandleRecord{
		Timestamp: t[WireTimestamp],
		Open:      t[WireOpen],
		Close:     t[WireClose],
		High:      t[WireHigh],
		Low:       t[WireLow],
		Volume:    t[WireVolume],
	}
}

// WireTuple is the inverse of FromWireTuple.
func (c CandleRecord) WireTuple() WireTuple {
	var t WireTuple
	t[WireTimestamp] = c.Timestamp
	t[WireOpen] = c.Open
	t[WireClose] = c.Close
	t[WireHigh] = c.High
	t[WireLow] = c.Low
	t[WireVolume] = c.Volume
	return t
}

// UnmarshalJSON decodes the exchange array form; exactly six numbers are required.
func (c *CandleRecord) UnmarshalJSON(data []byte) error {
	var fields []Number
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode candle tuple: %w", err)
	}
	if len(fields) != WireFields {
		return fmt.Errorf("candle tuple has %d fields, want %d", len(fields), WireFields)
	}

	var t WireTuple
	copy(t[:], fields)
	*c = FromWireTuple(t)
	return nil
}

// MarshalJSON writes the record back in exchange array form.
func (c CandleRecord) MarshalJSON() ([]byte, error) {
	t := c.WireTuple()
	return json.Marshal(t[:])
}

// TimestampMillis returns the open time in epoch milliseconds.
func (c CandleRecord) TimestampMillis() int64 {
	return c.Timestamp.Int64()
}

// Time returns the open time in UTC.
func (c CandleRecord) Time() time.Time {
	return time.UnixMilli(c.TimestampMillis()).UTC()
}

// DateTime returns the open time formatted with DateTimeLayout.
func (c CandleRecord) DateTime() string {
	return c.Time().Format(DateTimeLayout)
}

// CandleBatch holds the records returned by one slice request, in the order the
// exchange sent them. An empty batch is valid.
type CandleBatch []CandleRecord

// AccumulatedResult is every batch of one download in slice order.
type AccumulatedResult []CandleBatch

// RecordCount returns the number of records across all batches.
func (r AccumulatedResult) RecordCount() int {
	n := 0
	for _, b := range r {
		n += len(b)
	}
	return n
}

// Records flattens the batches, preserving order.
func (r AccumulatedResult) Records() []CandleRecord {
	out := make([]CandleRecord, 0, r.RecordCount())
	for _, b := range r {
		out = append(out, b...)
	}
	return out
}

// Clone returns a copy that shares no slices with r.
func (r AccumulatedResult) Clone() AccumulatedResult {
	if r == nil {
		return nil
	}
	out := make(AccumulatedResult, len(r))
	for i, b := range r {
		out[i] = append(CandleBatch(nil), b...)
		if out[i] == nil {
			out[i] = CandleBatch{}
		}
	}
	return out
}
