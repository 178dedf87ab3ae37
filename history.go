package main

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StoredSignal is one history record: a detection plus its insertion
// timestamp. Records are owned by the history; queries return copies.
type StoredSignal struct {
	Detection   Detection
	InsertionTS float64
}

// SignalHistory is a bounded, time-windowed store of detections used by
// the temporal threat detectors. Writes are serialized; every query
// copies out a consistent snapshot.
//
// Invariant violations (non-monotone insertion timestamps, capacity
// breach surviving eviction) indicate a code defect and are reported
// through the fatal callback rather than papered over.
type SignalHistory struct {
	mu         sync.Mutex
	entries    []StoredSignal
	maxEntries int
	maxAge     float64 // Seconds
	lastInsert float64

	now   func() float64 // Injectable clock for tests
	fatal func(error)    // Invoked on invariant violation
}

// NewSignalHistory creates a history store with the given limits
func NewSignalHistory(maxEntries int, maxAge float64) *SignalHistory {
	return &SignalHistory{
		entries:    make([]StoredSignal, 0, maxEntries),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        unixNow,
		fatal: func(err error) {
			log.Printf("ERROR: signal history invariant violated: %v", err)
		},
	}
}

// SetFatalHandler installs the orchestrator's invariant-violation handler
func (sh *SignalHistory) SetFatalHandler(fn func(error)) {
	sh.mu.Lock()
	sh.fatal = fn
	sh.mu.Unlock()
}

// Add appends a detection, evicts entries older than the window, then
// enforces the cardinality limit (oldest first).
func (sh *SignalHistory) Add(d Detection) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ts := sh.now()
	if ts < sh.lastInsert {
		sh.fatal(fmt.Errorf("insertion timestamp moved backwards: %.6f < %.6f", ts, sh.lastInsert))
		return
	}
	sh.lastInsert = ts

	sh.entries = append(sh.entries, StoredSignal{Detection: d, InsertionTS: ts})

	// Age eviction from the front
	cutoff := ts - sh.maxAge
	drop := 0
	for drop < len(sh.entries) && sh.entries[drop].InsertionTS < cutoff {
		drop++
	}
	if drop > 0 {
		sh.entries = sh.entries[drop:]
	}

	// Cardinality limit, oldest dropped first
	if over := len(sh.entries) - sh.maxEntries; over > 0 {
		sh.entries = sh.entries[over:]
	}

	if len(sh.entries) > sh.maxEntries {
		sh.fatal(fmt.Errorf("capacity breach after eviction: %d > %d", len(sh.entries), sh.maxEntries))
	}
}

// Recent returns a snapshot of entries inserted within the last window
// seconds, oldest first.
func (sh *SignalHistory) Recent(window float64) []StoredSignal {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.recentLocked(window)
}

func (sh *SignalHistory) recentLocked(window float64) []StoredSignal {
	cutoff := sh.now() - window
	start := 0
	for start < len(sh.entries) && sh.entries[start].InsertionTS < cutoff {
		start++
	}
	out := make([]StoredSignal, len(sh.entries)-start)
	copy(out, sh.entries[start:])
	return out
}

// RecentByType returns the recent entries of one signal type
func (sh *SignalHistory) RecentByType(signalType string, window float64) []StoredSignal {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	recent := sh.recentLocked(window)
	filtered := recent[:0]
	for _, s := range recent {
		if s.Detection.Type == signalType {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// FindSimilar scans the recent window for detections whose similarity to
// the target meets the threshold.
func (sh *SignalHistory) FindSimilar(target *Detection, threshold, window float64) []StoredSignal {
	recent := sh.Recent(window)

	var similar []StoredSignal
	for _, s := range recent {
		if s.Detection.ID == target.ID {
			continue
		}
		if SignalSimilarity(&target.Features, &s.Detection.Features) >= threshold {
			similar = append(similar, s)
		}
	}
	return similar
}

// HistoryStats is a point-in-time summary of the store for health reporting
type HistoryStats struct {
	TotalSignals  int            `json:"total_signals"`
	OldestAge     float64        `json:"oldest_signal_age"`
	NewestAge     float64        `json:"newest_signal_age"`
	SignalsByType map[string]int `json:"signal_types"`
}

// Stats returns buffer statistics
func (sh *SignalHistory) Stats() HistoryStats {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stats := HistoryStats{SignalsByType: map[string]int{}}
	stats.TotalSignals = len(sh.entries)
	if len(sh.entries) == 0 {
		return stats
	}

	now := sh.now()
	stats.OldestAge = now - sh.entries[0].InsertionTS
	stats.NewestAge = now - sh.entries[len(sh.entries)-1].InsertionTS
	for _, s := range sh.entries {
		stats.SignalsByType[s.Detection.Type]++
	}
	return stats
}

// Len returns the number of stored signals
func (sh *SignalHistory) Len() int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.entries)
}

// unixNow is the wall clock in float seconds, the unit used throughout
// the detection pipeline and on the wire.
func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
