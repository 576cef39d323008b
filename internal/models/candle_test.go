package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tuple(values ...string) WireTuple {
	var t WireTuple
	for i, v := range values {
		t[i] = MustNumber(v)
	}
	return t
}

func TestFromWireTuple(t *testing.T) {
	wire := tuple("1604188800000", "13737", "13780.5", "13800", "13650", "1234.5")

	record := FromWireTuple(wire)

	assert.Equal(t, "1604188800000", record.Timestamp.String())
	assert.Equal(t, "13780.5", record.Open.String(), "open comes from wire index 2")
	assert.Equal(t, "13737", record.Close.String(), "close comes from wire index 1")
	assert.Equal(t, "13800", record.High.String())
	assert.Equal(t, "13650", record.Low.String())
	assert.Equal(t, "1234.5", record.Volume.String())

	assert.Equal(t, wire, record.WireTuple())
}

func TestWireIndexLayout(t *testing.T) {
	assert.Equal(t, 0, WireTimestamp)
	assert.Equal(t, 1, WireClose)
	assert.Equal(t, 2, WireOpen)
	assert.Equal(t, 3, WireHigh)
	assert.Equal(t, 4, WireLow)
	assert.Equal(t, 5, WireVolume)
	assert.Equal(t, 6, WireFields)
}

func TestCandleRecordUnmarshalJSON(t *testing.T) {
	t.Run("decodes a batch with mixed literals", func(t *testing.T) {
		body := `[[1604188801000,100,100.5,101,99,12.25],[1604102401000,99.5,100,100,98,3]]`

		var batch CandleBatch
		require.NoError(t, json.Unmarshal([]byte(body), &batch))
		require.Len(t, batch, 2)

		assert.Equal(t, "100.5", batch[0].Open.String())
		assert.Equal(t, "100", batch[0].Close.String())
		assert.True(t, batch[0].Close.IsInteger())
		assert.False(t, batch[0].Open.IsInteger())
		assert.Equal(t, int64(1604188801000), batch[0].TimestampMillis())
		assert.Equal(t, "3", batch[1].Volume.String())
	})

	t.Run("empty array is an empty batch", func(t *testing.T) {
		var batch CandleBatch
		require.NoError(t, json.Unmarshal([]byte(`[]`), &batch))
		assert.Empty(t, batch)
	})

	invalid := map[string]string{
		"too few fields":   `[[1,2,3,4,5]]`,
		"too many fields":  `[[1,2,3,4,5,6,7]]`,
		"string field":     `[[1,"2",3,4,5,6]]`,
		"null field":       `[[1,null,3,4,5,6]]`,
		"object not tuple": `[{"open":1}]`,
		"error payload":    `["error",10020,"limit: invalid"]`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			var batch CandleBatch
			assert.Error(t, json.Unmarshal([]byte(body), &batch))
		})
	}
}

func TestCandleRecordMarshalJSON(t *testing.T) {
	record := FromWireTuple(tuple("1604188801000", "100", "100.5", "101", "99", "12.25"))

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `[1604188801000,100,100.5,101,99,12.25]`, string(data))
	assert.Equal(t, `[1604188801000,100,100.5,101,99,12.25]`, string(data))
}

func TestCandleRecordTime(t *testing.T) {
	record := FromWireTuple(tuple("1604188800000", "1", "1", "1", "1", "1"))

	assert.Equal(t, time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC), record.Time())
	assert.Equal(t, "2020-11-01 00:00:00 UTC", record.DateTime())
}

func TestAccumulatedResult(t *testing.T) {
	r1 := FromWireTuple(tuple("3", "1", "1", "1", "1", "1"))
	r2 := FromWireTuple(tuple("2", "1", "1", "1", "1", "1"))
	r3 := FromWireTuple(tuple("1", "1", "1", "1", "1", "1"))

	result := AccumulatedResult{{r1, r2}, {}, {r3}}

	assert.Equal(t, 3, result.RecordCount())
	assert.Equal(t, []CandleRecord{r1, r2, r3}, result.Records())

	t.Run("clone shares no storage", func(t *testing.T) {
		snapshot := result.Clone()
		require.Len(t, snapshot, 3)
		assert.NotNil(t, snapshot[1])

		snapshot[0][0] = r3
		assert.Equal(t, r1, result[0][0])
	})

	t.Run("nil clones to nil", func(t *testing.T) {
		var empty AccumulatedResult
		assert.Nil(t, empty.Clone())
		assert.Equal(t, 0, empty.RecordCount())
	})
}
