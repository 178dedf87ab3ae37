package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBruteForceDetector(h *SignalHistory) *BruteForceDetector {
	return NewBruteForceDetector(h, DefaultConfig().BruteForce)
}

// floodDetections adds n same-type detections spaced dt seconds apart,
// returning the last one added.
func floodDetections(h *SignalHistory, clock *testClock, n int, dt float64) Detection {
	var last Detection
	for i := 0; i < n; i++ {
		last = testDetection(SignalKeyFob, clock.now)
		h.Add(last)
		if i < n-1 {
			clock.advance(dt)
		}
	}
	return last
}

func TestBruteForceQuiet(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	// Two fob presses a minute apart is normal usage
	h.Add(testDetection(SignalKeyFob, clock.now))
	clock.advance(60)
	d := testDetection(SignalKeyFob, clock.now)
	h.Add(d)

	result := bd.Check(&d)
	assert.False(t, result.IsBruteForce)
}

// 12 detections in 60 s crosses the moderate threshold
func TestBruteForceModerate(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	last := floodDetections(h, clock, 12, 5)
	result := bd.Check(&last)

	require.True(t, result.IsBruteForce)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)

	require.NotNil(t, result.Evidence)
	assert.Equal(t, BruteModerate, result.Evidence.ThreatLevel)
	assert.Contains(t, result.Evidence.RecommendedActions[0], "rate limiting")
	assert.InDelta(t, 12, result.Evidence.SignalRate, 0.01)
	assert.Equal(t, 12, result.Evidence.Windows["medium"].SignalCount)
	assert.Equal(t, 12, result.Evidence.Statistics.TotalAttempts)
}

// 45 detections in 60 s is critical, with the emergency playbook
func TestBruteForceCritical(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	last := floodDetections(h, clock, 45, 60.0/45)
	result := bd.Check(&last)

	require.True(t, result.IsBruteForce)
	assert.GreaterOrEqual(t, result.Confidence, 0.8)
	assert.Equal(t, ThreatMalicious, result.ThreatLevel)

	require.NotNil(t, result.Evidence)
	assert.Equal(t, BruteCritical, result.Evidence.ThreatLevel)

	mentionsEmergency := false
	for _, action := range result.Evidence.RecommendedActions {
		if action == "EMERGENCY: Implement all countermeasures" ||
			action == "Isolate affected systems immediately" {
			mentionsEmergency = true
		}
	}
	assert.True(t, mentionsEmergency)

	// Sub-2-second spacing counts as rapid bursts
	assert.Greater(t, result.Evidence.Windows["short"].RapidBurstCount, 10)
	assert.Equal(t, AttackRapidBurst, result.Evidence.AttackType)
}

// Escalation never demotes as the rate rises within the same window
func TestBruteForceEscalationMonotone(t *testing.T) {
	h, clock := newTestHistory(5000, 600)
	bd := newTestBruteForceDetector(h)

	lastRank := 0
	for i := 0; i < 50; i++ {
		d := testDetection(SignalKeyFob, clock.now)
		h.Add(d)
		result := bd.Check(&d)

		rank := 0
		if result.IsBruteForce {
			rank = bruteLevelRank[result.Evidence.ThreatLevel]
		}
		assert.GreaterOrEqual(t, rank, lastRank, "escalation demoted at signal %d", i)
		lastRank = rank

		clock.advance(1.0)
	}
	assert.Greater(t, lastRank, 0)
}

// A near-certain pattern at a barely-suspicious rate compounds both
// escalation steps: suspicious -> moderate (special case) -> high
// (generic pattern bump) in one evaluation.
func TestBruteForceSuspiciousDoubleEscalation(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	// 6 detections in a rapid burst, then a lull: the medium-window rate
	// stays between the suspicious and moderate thresholds while the
	// sub-2-second spacing drives pattern confidence to 1.0
	last := floodDetections(h, clock, 6, 1)
	result := bd.Check(&last)

	require.True(t, result.IsBruteForce)
	assert.Equal(t, BruteHigh, result.Evidence.ThreatLevel)
}

// Per-type isolation: TPMS telemetry does not count against key fobs
func TestBruteForcePerTypeWindows(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	for i := 0; i < 20; i++ {
		tpms := testDetection(SignalTPMS, clock.now)
		tpms.Features = tpmsFeatures(clock.now)
		h.Add(tpms)
		clock.advance(1)
	}

	fob := testDetection(SignalKeyFob, clock.now)
	h.Add(fob)
	result := bd.Check(&fob)
	assert.False(t, result.IsBruteForce)
}

// Identical repeated attempts show up in the consistency analysis
func TestBruteForceConsistency(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	bd := newTestBruteForceDetector(h)

	last := floodDetections(h, clock, 15, 3)
	result := bd.Check(&last)

	require.True(t, result.IsBruteForce)
	assert.Greater(t, result.Evidence.ConsistencyScore, 0.95)
	assert.Greater(t, result.Evidence.IdenticalSignals, 0)
}

func TestIntervalConsistency(t *testing.T) {
	// Perfectly regular intervals score 1
	regular := computeIntervalStats([]float64{0, 5, 10, 15, 20})
	assert.InDelta(t, 1.0, intervalConsistency(regular), 1e-9)

	// Irregular intervals score lower
	irregular := computeIntervalStats([]float64{0, 1, 10, 11, 30})
	assert.Less(t, intervalConsistency(irregular), 0.7)

	assert.Zero(t, intervalConsistency(intervalStats{}))
}
