package main

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SignalSimilarity scores how alike two detections are, in [0,1].
// Component weights (spectrum 0.40, burst timing 0.30, frequency
// deviation 0.20, bandwidth 0.10) are renormalized over the fields both
// detections actually supply, so a missing spectrum does not drag the
// score down. Undefined comparisons contribute 0.
func SignalSimilarity(a, b *SignalFeatures) float64 {
	var score, weight float64

	spectrumSupplied := len(a.PowerSpectrum) > 0 && len(b.PowerSpectrum) > 0
	if spectrumSupplied {
		score += compareSpectra(a.PowerSpectrum, b.PowerSpectrum) * 0.40
		weight += 0.40
	}

	// Burst timing counts as supplied unless both signals are burst-free
	if len(a.BurstTiming) > 0 || len(b.BurstTiming) > 0 {
		score += compareBurstTiming(a.BurstTiming, b.BurstTiming) * 0.30
		weight += 0.30
	}

	score += proximity(a.FrequencyDeviation, b.FrequencyDeviation) * 0.20
	weight += 0.20

	score += proximity(a.SignalBandwidth, b.SignalBandwidth) * 0.10
	weight += 0.10

	if !spectrumSupplied {
		// Fall back to coarse power / peak-count proximity in place of
		// the spectrum component
		powerSim := math.Max(0, 1-math.Abs(a.RSSI-b.RSSI)/20)
		peakSim := math.Max(0, 1-math.Abs(float64(len(a.PeakFrequencies)-len(b.PeakFrequencies)))/10)
		score += (powerSim + peakSim) / 2 * 0.40
		weight += 0.40
	}

	if weight == 0 {
		return 0
	}
	return clamp01(score / weight)
}

// compareSpectra is the Pearson correlation of the two power spectra,
// truncated to the shorter. Anti-correlated spectra are dissimilar, so
// negative correlation floors at 0; NaN (e.g. zero-variance input)
// also maps to 0.
func compareSpectra(s1, s2 []float64) float64 {
	n := len(s1)
	if len(s2) < n {
		n = len(s2)
	}
	if n == 0 {
		return 0
	}

	corr := stat.Correlation(s1[:n], s2[:n], nil)
	if math.IsNaN(corr) {
		return 0
	}
	return clamp01(math.Max(0, corr))
}

// compareBurstTiming compares the inter-burst interval patterns of two
// burst trains. Mismatched burst counts score 0; single-burst trains
// with matching counts score 1.
func compareBurstTiming(t1, t2 []float64) float64 {
	if len(t1) != len(t2) || len(t1) == 0 {
		return 0
	}
	if len(t1) == 1 {
		return 1
	}

	i1 := interBurstIntervals(t1)
	i2 := interBurstIntervals(t2)

	maxDiff := 0.0
	var sum float64
	for k := range i1 {
		d := math.Abs(i1[k] - i2[k])
		if d > maxDiff {
			maxDiff = d
		}
		sum += i1[k] + i2[k]
	}
	avgInterval := sum / float64(2*len(i1))
	if avgInterval == 0 {
		if maxDiff == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-maxDiff/avgInterval)
}

// proximity scores two non-negative magnitudes by their relative
// difference. Two zeros are identical.
func proximity(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(a-b)/max)
}
