package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/ticker-weaver/internal/storage"
)

// Tracker holds and manages run metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
}

// NewTracker creates a new metrics tracker
func NewTracker(command string) *Tracker {
	return &Tracker{
		data: storage.Metrics{
			Command:   command,
			StartTime: time.Now(),
		},
	}
}

// RecordFetch records one HTTP response and how long it took
func (t *Tracker) RecordFetch(statusCode int, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++

	switch statusCode {
	case http.StatusOK:
		t.data.PagesFetched++
	case http.StatusTooManyRequests:
		t.data.RateLimited++
	}
}

// AddTickersDiscovered increments the discovered tickers counter
func (t *Tracker) AddTickersDiscovered(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TickersDiscovered += n
}

// AddSnapshotsCollected increments the collected snapshots counter
func (t *Tracker) AddSnapshotsCollected(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.SnapshotsCollected += n
}

// IncrementCheckpoints increments the checkpoint counter
func (t *Tracker) IncrementCheckpoints() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Checkpoints++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress renders current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d fetched, %d rate limited | Tickers: %d new | Snapshots: %d | Checkpoints: %d",
		t.data.PagesFetched,
		t.data.RateLimited,
		t.data.TickersDiscovered,
		t.data.SnapshotsCollected,
		t.data.Checkpoints,
	)
}
