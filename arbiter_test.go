package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArbiter(h *SignalHistory) *ThreatArbiter {
	cfg := DefaultConfig()
	replay := NewReplayDetector(h, cfg.Replay)
	jamming := NewJammingDetector(cfg.Jamming, testSampleRate)
	brute := NewBruteForceDetector(h, cfg.BruteForce)
	return NewThreatArbiter(h, replay, jamming, brute, cfg.SDR.Frequency, cfg.SDR.SampleRate)
}

// A lone key fob press produces a benign transmission event
func TestArbiterBenignKeyFob(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	arbiter := newTestArbiter(h)

	d := testDetection(SignalKeyFob, clock.now)
	event := arbiter.Analyze(&d)

	require.NotNil(t, event)
	assert.Equal(t, "key_fob_transmission", event.Kind)
	assert.Zero(t, event.ThreatLevel)
	assert.Equal(t, SignalKeyFob, event.SignalType)
	assert.GreaterOrEqual(t, event.Confidence, 0.85)
	assert.Empty(t, event.Indicators)
	assert.Equal(t, "Monitor", event.RecommendedAction)
	assert.InDelta(t, 433.92, event.FrequencyMHz, 0.001)

	// The arbiter recorded the detection for later frames
	assert.Equal(t, 1, h.Len())
}

// The replayed press 60 s later produces a replay event
func TestArbiterReplayEvent(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	arbiter := newTestArbiter(h)

	first := testDetection(SignalKeyFob, clock.now)
	benign := arbiter.Analyze(&first)
	require.Zero(t, benign.ThreatLevel)

	clock.advance(60)
	replayed := testDetection(SignalKeyFob, clock.now)
	event := arbiter.Analyze(&replayed)

	require.NotNil(t, event)
	assert.Equal(t, IndicatorReplay, event.Kind)
	assert.GreaterOrEqual(t, event.ThreatLevel, 0.8)
	assert.LessOrEqual(t, event.ThreatLevel, 1.0)

	evidence, ok := event.PrimaryEvidence.(*ReplayEvidence)
	require.True(t, ok)
	assert.GreaterOrEqual(t, evidence.SignalSimilarity, 0.95)
	assert.Equal(t, first.Timestamp, evidence.OriginalTimestamp)
	assert.Equal(t, "Block signal, investigate source", event.RecommendedAction)
}

// Every emitted event keeps threat level and confidence inside [0,1]
func TestArbiterEventBounds(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	arbiter := newTestArbiter(h)

	for i := 0; i < 60; i++ {
		d := testDetection(SignalKeyFob, clock.now)
		event := arbiter.Analyze(&d)
		require.NotNil(t, event)

		assert.GreaterOrEqual(t, event.ThreatLevel, 0.0)
		assert.LessOrEqual(t, event.ThreatLevel, 1.0)
		assert.GreaterOrEqual(t, event.Confidence, 0.0)
		assert.LessOrEqual(t, event.Confidence, 1.0)

		clock.advance(0.5)
	}
}

// A frame with no classified signal can still carry a jamming verdict
func TestArbiterAnalyzeFrameJamming(t *testing.T) {
	h, _ := newTestHistory(1000, 600)
	arbiter := newTestArbiter(h)

	ts := 1000.0
	for i := 0; i < 50; i++ {
		f := quietFrame(ts)
		assert.Nil(t, arbiter.AnalyzeFrame(&f))
		arbiter.jamming.Observe(&f)
		ts += 0.1
	}

	f := broadbandFrame(ts)
	event := arbiter.AnalyzeFrame(&f)
	require.NotNil(t, event)
	assert.Equal(t, IndicatorJamming, event.Kind)
	assert.Equal(t, SignalUnknown, event.SignalType)
	assert.GreaterOrEqual(t, event.ThreatLevel, 0.8)

	_, ok := event.PrimaryEvidence.(*JammingEvidence)
	assert.True(t, ok)
}

// The highest-confidence indicator names the event and supplies the
// primary evidence
func TestArbiterPrimaryIndicatorSelection(t *testing.T) {
	h, clock := newTestHistory(1000, 600)
	arbiter := newTestArbiter(h)

	// Flood to trigger brute force, then replay the first press so both
	// indicators fire on the final detection
	floodDetections(h, clock, 30, 1.5)
	clock.advance(10)

	d := testDetection(SignalKeyFob, clock.now)
	event := arbiter.Analyze(&d)

	require.NotNil(t, event)
	require.NotEmpty(t, event.Indicators)
	best := event.Indicators[0]
	for _, ind := range event.Indicators {
		if ind.Confidence > best.Confidence {
			best = ind
		}
	}
	assert.Equal(t, best.Kind, event.Kind)
	assert.Equal(t, clamp01(best.Confidence), event.Confidence)
}
