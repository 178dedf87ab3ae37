package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// randomFeatures draws a plausible feature set for property tests
func randomFeatures(t *rapid.T, label string) SignalFeatures {
	n := rapid.IntRange(0, 64).Draw(t, label+"_spectrum_len")
	spectrum := make([]float64, n)
	for i := range spectrum {
		spectrum[i] = rapid.Float64Range(-120, 20).Draw(t, label+"_bin")
	}

	burstCount := rapid.IntRange(0, 8).Draw(t, label+"_bursts")
	bursts := make([]float64, burstCount)
	ts := 0.0
	for i := range bursts {
		ts += rapid.Float64Range(0.001, 0.05).Draw(t, label+"_gap")
		bursts[i] = ts
	}

	return SignalFeatures{
		PowerSpectrum:       spectrum,
		BurstTiming:         bursts,
		InterBurstIntervals: interBurstIntervals(bursts),
		FrequencyDeviation:  rapid.Float64Range(0, 100e3).Draw(t, label+"_dev"),
		SignalBandwidth:     rapid.Float64Range(0, 500e3).Draw(t, label+"_bw"),
		RSSI:                rapid.Float64Range(-120, 0).Draw(t, label+"_rssi"),
		BurstCount:          burstCount,
	}
}

// Similarity is always within [0,1]
func TestSimilarityRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := randomFeatures(t, "a")
		b := randomFeatures(t, "b")
		s := SignalSimilarity(&a, &b)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	})
}

// A detection is always fully similar to itself, provided its spectrum
// is not degenerate (a zero-variance spectrum has undefined correlation,
// which scores 0 by definition).
func TestSimilaritySelf(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := randomFeatures(t, "a")
		if len(a.PowerSpectrum) > 1 {
			a.PowerSpectrum[0] += 1 // Guarantee variance
		}
		if popStdDev(a.PowerSpectrum) == 0 && len(a.PowerSpectrum) > 0 {
			t.Skip("degenerate constant spectrum")
		}
		assert.InDelta(t, 1.0, SignalSimilarity(&a, &a), 1e-9)
	})
}

func TestSimilarityIdenticalKeyFobs(t *testing.T) {
	a := keyFobFeatures(100)
	b := keyFobFeatures(160)
	assert.InDelta(t, 1.0, SignalSimilarity(&a, &b), 1e-9)
}

func TestSimilarityMismatchedBurstCounts(t *testing.T) {
	a := keyFobFeatures(100)
	b := keyFobFeatures(100)
	b.BurstTiming = b.BurstTiming[:2]
	b.InterBurstIntervals = interBurstIntervals(b.BurstTiming)
	b.BurstCount = 2

	// Timing component collapses to 0 but the rest still counts
	s := SignalSimilarity(&a, &b)
	assert.Less(t, s, 1.0)
	assert.Greater(t, s, 0.0)
}

func TestSimilarityFallbackWithoutSpectra(t *testing.T) {
	a := keyFobFeatures(0)
	b := keyFobFeatures(0)
	a.PowerSpectrum = nil
	b.PowerSpectrum = nil

	// RSSI and peak counts match exactly, so the fallback scores 1
	assert.InDelta(t, 1.0, SignalSimilarity(&a, &b), 1e-9)

	b.RSSI = a.RSSI - 40 // Far outside the 20 dB proximity range
	s := SignalSimilarity(&a, &b)
	assert.Less(t, s, 1.0)
}

// Anti-correlated spectra are maximally dissimilar, not similar
func TestCompareSpectraAntiCorrelated(t *testing.T) {
	up := make([]float64, 64)
	down := make([]float64, 64)
	for i := range up {
		up[i] = float64(i)
		down[i] = float64(len(down) - i)
	}

	assert.Zero(t, compareSpectra(up, down)) // corr = -1
	assert.InDelta(t, 1.0, compareSpectra(up, up), 1e-9)
}

func TestProximity(t *testing.T) {
	assert.Equal(t, 1.0, proximity(0, 0))
	assert.InDelta(t, 1.0, proximity(30e3, 30e3), 1e-9)
	assert.InDelta(t, 0.5, proximity(15e3, 30e3), 1e-9)
	assert.Equal(t, 0.0, proximity(0, 30e3))
}

func TestCompareBurstTiming(t *testing.T) {
	assert.Equal(t, 0.0, compareBurstTiming(nil, nil))
	assert.Equal(t, 0.0, compareBurstTiming([]float64{0.1}, nil))
	assert.Equal(t, 1.0, compareBurstTiming([]float64{0.1}, []float64{0.2}))

	a := []float64{0, 0.015, 0.030}
	b := []float64{0, 0.015, 0.030}
	assert.InDelta(t, 1.0, compareBurstTiming(a, b), 1e-9)

	c := []float64{0, 0.030, 0.060} // Doubled intervals
	assert.Less(t, compareBurstTiming(a, c), 0.5)
}
