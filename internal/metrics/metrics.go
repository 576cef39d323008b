// Package metrics counts what one download did: requests sent, retries taken,
// slices completed and rows written. The counters are summarised in the log
// when the run ends.
package metrics

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metric names recorded by the downloader.
const (
	HTTPRequests     = "http_requests_total"
	HTTPRetries      = "http_retries_total"
	HTTPFailures     = "http_failures_total"
	SlicesFetched    = "slices_fetched_total"
	CandlesFetched   = "candles_fetched_total"
	RowsStored       = "rows_stored_total"
	RowsExported     = "rows_exported_total"
	SliceDuration    = "slice_duration"
	StorageDuration  = "storage_duration"
	ExportDuration   = "export_duration"
	DownloadDuration = "download_duration"
)

// Recorder accumulates counters and durations. The zero value is not usable;
// a nil *Recorder is, and records nothing.
type Recorder struct {
	mu        sync.Mutex
	counters  map[string]int64
	durations map[string]time.Duration
	startTime time.Time
}

// Snapshot is a point-in-time copy of a Recorder.
type Snapshot struct {
	Counters  map[string]int64         `json:"counters"`
	Durations map[string]time.Duration `json:"durations"`
	Uptime    time.Duration            `json:"uptime"`
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters:  make(map[string]int64),
		durations: make(map[string]time.Duration),
		startTime: time.Now(),
	}
}

// RecordCounter adds delta to the named counter.
func (r *Recorder) RecordCounter(name string, delta int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.counters[name] += delta
	r.mu.Unlock()
}

// RecordDuration adds d to the named running total.
func (r *Recorder) RecordDuration(name string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.durations[name] += d
	r.mu.Unlock()
}

// Counter returns the current value of a counter.
func (r *Recorder) Counter(name string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// GetSnapshot copies the current state.
func (r *Recorder) GetSnapshot() Snapshot {
	if r == nil {
		return Snapshot{Counters: map[string]int64{}, Durations: map[string]time.Duration{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Counters:  make(map[string]int64, len(r.counters)),
		Durations: make(map[string]time.Duration, len(r.durations)),
		Uptime:    time.Since(r.startTime),
	}
	for k, v := range r.counters {
		snap.Counters[k] = v
	}
	for k, v := range r.durations {
		snap.Durations[k] = v
	}
	return snap
}

// LogSummary writes one line holding every counter and duration, in name order.
func (r *Recorder) LogSummary(logger *slog.Logger) {
	if r == nil || logger == nil {
		return
	}

	snap := r.GetSnapshot()
	attrs := make([]any, 0, len(snap.Counters)+len(snap.Durations)+1)

	names := make([]string, 0, len(snap.Counters))
	for name := range snap.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, slog.Int64(name, snap.Counters[name]))
	}

	names = names[:0]
	for name := range snap.Durations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, slog.Duration(name, snap.Durations[name]))
	}

	attrs = append(attrs, slog.Duration("uptime", snap.Uptime))
	logger.Info("download metrics", attrs...)
}
