package main

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// SignalFeatures is the sufficient statistic of one frame
type SignalFeatures struct {
	Timestamp          float64   `json:"timestamp"` // Unix seconds
	Frequency          float64   `json:"frequency"` // Tuned center frequency in Hz
	PowerSpectrum      []float64 `json:"power_spectrum"` // dB, length = frame length
	BurstTiming        []float64 `json:"burst_timing"`   // Burst start times in seconds, ordered
	InterBurstIntervals []float64 `json:"inter_burst_intervals"`
	ModulationType     string    `json:"modulation_type"` // FSK, ASK or Unknown
	FrequencyDeviation float64   `json:"frequency_deviation"` // Hz, >= 0
	SignalBandwidth    float64   `json:"signal_bandwidth"`    // -3 dB width in Hz, >= 0
	SNR                float64   `json:"snr"`  // dB
	RSSI               float64   `json:"rssi"` // dBm
	PeakFrequencies    []float64 `json:"peak_frequencies"` // Hz, ascending
	BurstCount         int       `json:"burst_count"`
}

// Display returns the subset of features carried on broadcast events
func (f *SignalFeatures) Display() EventFeatures {
	return EventFeatures{
		RSSI:            f.RSSI,
		SNR:             f.SNR,
		ModulationType:  f.ModulationType,
		Bandwidth:       f.SignalBandwidth,
		BurstCount:      f.BurstCount,
		PeakFrequencies: f.PeakFrequencies,
	}
}

// Modulation classes
const (
	ModFSK     = "FSK"
	ModASK     = "ASK"
	ModUnknown = "Unknown"
)

// FeatureExtractor computes per-frame signal features. It is pure CPU,
// deterministic, and never fails: numeric edge cases produce the
// documented zero values.
type FeatureExtractor struct {
	sampleRate float64

	// FFT plan and Hann window cached per frame length
	fftLen  int
	fft     *fourier.CmplxFFT
	window  []float64
	scratch []complex128
}

// NewFeatureExtractor creates a feature extractor for the given sample rate
func NewFeatureExtractor(sampleRate float64) *FeatureExtractor {
	return &FeatureExtractor{sampleRate: sampleRate}
}

// Extract computes the full feature set for one frame of complex samples
func (fe *FeatureExtractor) Extract(samples []complex128, timestamp float64) SignalFeatures {
	features := SignalFeatures{
		Timestamp:           timestamp,
		ModulationType:      ModUnknown,
		PowerSpectrum:       []float64{},
		BurstTiming:         []float64{},
		InterBurstIntervals: []float64{},
		PeakFrequencies:     []float64{},
	}

	if len(samples) == 0 {
		return features
	}

	features.PowerSpectrum = fe.powerSpectrum(samples)
	features.BurstTiming = fe.detectBurstTiming(samples)
	features.BurstCount = len(features.BurstTiming)
	features.InterBurstIntervals = interBurstIntervals(features.BurstTiming)

	instFreq := fe.instantaneousFrequency(samples)
	features.ModulationType = classifyModulation(instFreq)
	features.FrequencyDeviation = frequencyDeviation(instFreq)
	features.SignalBandwidth = fe.measureBandwidth(features.PowerSpectrum)

	power := instantaneousPower(samples)
	features.SNR = calculateSNR(power)
	features.RSSI = calculateRSSI(power)
	features.PeakFrequencies = fe.findPeakFrequencies(features.PowerSpectrum)

	return features
}

// ensurePlan rebuilds the cached FFT plan and window when the frame
// length changes. Chunked reads produce a constant length in steady
// state, so this is a one-time cost.
func (fe *FeatureExtractor) ensurePlan(n int) {
	if fe.fftLen == n {
		return
	}
	fe.fftLen = n
	fe.fft = fourier.NewCmplxFFT(n)
	fe.scratch = make([]complex128, n)
	fe.window = make([]float64, n)
	for i := range fe.window {
		if n == 1 {
			fe.window[i] = 1
			continue
		}
		fe.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
}

// powerSpectrum computes the Hann-windowed power spectrum in dB,
// floored at 10*log10(1e-12).
func (fe *FeatureExtractor) powerSpectrum(samples []complex128) []float64 {
	n := len(samples)
	fe.ensurePlan(n)

	for i, s := range samples {
		fe.scratch[i] = s * complex(fe.window[i], 0)
	}
	coeffs := fe.fft.Coefficients(nil, fe.scratch)

	spectrum := make([]float64, n)
	for i, c := range coeffs {
		m := cmplx.Abs(c)
		spectrum[i] = 10 * math.Log10(m*m+1e-12)
	}
	return spectrum
}

// detectBurstTiming finds burst start times by thresholding the smoothed
// power envelope.
func (fe *FeatureExtractor) detectBurstTiming(samples []complex128) []float64 {
	if len(samples) == 0 {
		return []float64{}
	}

	power := instantaneousPower(samples)

	// ~1 ms smoothing window, clamped below the frame length
	windowSize := int(fe.sampleRate * 0.001)
	if windowSize < 1 {
		windowSize = 1
	}
	if windowSize >= len(power) {
		windowSize = len(power) / 10
		if windowSize < 1 {
			windowSize = 1
		}
	}

	smoothed := movingAverage(power, windowSize)

	mean := stat.Mean(smoothed, nil)
	std := popStdDev(smoothed)

	// A near-constant envelope needs a more sensitive threshold
	var threshold float64
	if std < mean*0.1 {
		threshold = mean + math.Max(std, mean*0.5)
	} else {
		threshold = mean + 2*std
	}

	// Gaps larger than this many samples start a new burst
	gapThreshold := int(fe.sampleRate * 0.005)
	if gapThreshold < windowSize {
		gapThreshold = windowSize
	}

	var starts []float64
	lastIdx := -1
	currentStart := -1
	for i, p := range smoothed {
		if p <= threshold {
			continue
		}
		if currentStart < 0 {
			currentStart = i
		} else if i-lastIdx > gapThreshold {
			starts = append(starts, float64(currentStart)/fe.sampleRate)
			currentStart = i
		}
		lastIdx = i
	}
	if currentStart >= 0 {
		starts = append(starts, float64(currentStart)/fe.sampleRate)
	}
	if starts == nil {
		starts = []float64{}
	}
	return starts
}

// instantaneousFrequency differentiates the unwrapped phase to get the
// per-sample frequency estimate in Hz. Returns len(samples)-1 values.
func (fe *FeatureExtractor) instantaneousFrequency(samples []complex128) []float64 {
	if len(samples) < 2 {
		return nil
	}

	freq := make([]float64, len(samples)-1)
	prev := cmplx.Phase(samples[0])
	unwrapped := prev
	for i := 1; i < len(samples); i++ {
		phase := cmplx.Phase(samples[i])
		delta := phase - prev
		for delta > math.Pi {
			delta -= 2 * math.Pi
		}
		for delta < -math.Pi {
			delta += 2 * math.Pi
		}
		prev = phase
		next := unwrapped + delta
		freq[i-1] = (next - unwrapped) * fe.sampleRate / (2 * math.Pi)
		unwrapped = next
	}
	return freq
}

// classifyModulation decides FSK / ASK / Unknown from the instantaneous
// frequency statistics.
func classifyModulation(instFreq []float64) string {
	if len(instFreq) == 0 {
		return ModUnknown
	}

	std := popStdDev(instFreq)
	min, max := minMax(instFreq)
	freqRange := max - min

	switch {
	case freqRange > 10e3 && std > 5e3:
		return ModFSK
	case std < 1e3:
		return ModASK
	default:
		return ModUnknown
	}
}

// frequencyDeviation is half the peak-to-peak swing of the instantaneous
// frequency (the DC component cancels out of the difference).
func frequencyDeviation(instFreq []float64) float64 {
	if len(instFreq) == 0 {
		return 0
	}
	min, max := minMax(instFreq)
	return (max - min) / 2
}

// measureBandwidth returns the -3 dB width of the spectrum in Hz
func (fe *FeatureExtractor) measureBandwidth(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0
	}

	peak := spectrum[0]
	for _, p := range spectrum {
		if p > peak {
			peak = p
		}
	}
	threshold := peak - 3

	minIdx, maxIdx := -1, -1
	for i, p := range spectrum {
		if p > threshold {
			if minIdx < 0 {
				minIdx = i
			}
			maxIdx = i
		}
	}
	if minIdx < 0 {
		return 0
	}

	n := len(spectrum)
	return math.Abs(fftBinFrequency(maxIdx, n, fe.sampleRate) - fftBinFrequency(minIdx, n, fe.sampleRate))
}

// calculateSNR estimates SNR as peak power over median power in dB
func calculateSNR(power []float64) float64 {
	if len(power) == 0 {
		return 0
	}
	peak := power[0]
	for _, p := range power {
		if p > peak {
			peak = p
		}
	}
	noise := median(power)
	if noise <= 0 {
		return 0
	}
	return 10 * math.Log10(peak/noise)
}

// calculateRSSI converts mean power to an approximate dBm figure
func calculateRSSI(power []float64) float64 {
	if len(power) == 0 {
		return 10*math.Log10(1e-12) - 30
	}
	return 10*math.Log10(stat.Mean(power, nil)+1e-12) - 30
}

// findPeakFrequencies returns the absolute frequencies of spectral peaks
// within 10 dB of the maximum, with a minimum separation of 10 bins,
// sorted ascending.
func (fe *FeatureExtractor) findPeakFrequencies(spectrum []float64) []float64 {
	const minDistance = 10

	n := len(spectrum)
	if n < 3 {
		return []float64{}
	}

	peak := spectrum[0]
	for _, p := range spectrum {
		if p > peak {
			peak = p
		}
	}
	height := peak - 10

	// Local maxima above the height threshold
	var candidates []int
	for i := 1; i < n-1; i++ {
		if spectrum[i] > spectrum[i-1] && spectrum[i] > spectrum[i+1] && spectrum[i] >= height {
			candidates = append(candidates, i)
		}
	}

	// Enforce minimum separation, keeping the strongest peaks first
	sort.Slice(candidates, func(a, b int) bool {
		return spectrum[candidates[a]] > spectrum[candidates[b]]
	})
	var accepted []int
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			if abs(c-a) < minDistance {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}

	freqs := make([]float64, 0, len(accepted))
	for _, idx := range accepted {
		freqs = append(freqs, math.Abs(fftBinFrequency(idx, n, fe.sampleRate)))
	}
	sort.Float64s(freqs)
	return freqs
}

// interBurstIntervals derives the gaps between consecutive burst starts
func interBurstIntervals(burstTiming []float64) []float64 {
	if len(burstTiming) < 2 {
		return []float64{}
	}
	intervals := make([]float64, len(burstTiming)-1)
	for i := 1; i < len(burstTiming); i++ {
		intervals[i-1] = burstTiming[i] - burstTiming[i-1]
	}
	return intervals
}

// fftBinFrequency maps an FFT bin index to its signed baseband frequency
func fftBinFrequency(i, n int, sampleRate float64) float64 {
	if n == 0 {
		return 0
	}
	half := (n + 1) / 2
	if i < half {
		return float64(i) * sampleRate / float64(n)
	}
	return float64(i-n) * sampleRate / float64(n)
}

// movingAverage smooths data with a centered window, zero-padded at the
// edges.
func movingAverage(data []float64, window int) []float64 {
	if window <= 1 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}

	out := make([]float64, len(data))
	half := window / 2
	// Prefix sums make the window sum O(1) per sample
	prefix := make([]float64, len(data)+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v
	}
	for i := range data {
		lo := i - half
		hi := lo + window
		if lo < 0 {
			lo = 0
		}
		if hi > len(data) {
			hi = len(data)
		}
		out[i] = (prefix[hi] - prefix[lo]) / float64(window)
	}
	return out
}

// popStdDev is the population standard deviation (N divisor)
func popStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := stat.Mean(data, nil)
	var sum float64
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// median returns the middle value of the data (average of the two middle
// values for even lengths).
func median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func minMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
