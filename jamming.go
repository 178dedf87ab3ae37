package main

import (
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

// frameRecord is the per-frame summary the jamming detector keeps for
// temporal pattern analysis. Spectra are not retained; only the current
// frame's spectrum is ever inspected.
type frameRecord struct {
	Timestamp  float64
	Frequency  float64
	RSSI       float64
	SNR        float64
	NoiseFloor float64 // Median spectrum power, dB
}

// JammingDetector analyzes noise-floor elevation, broadband interference
// and temporal power patterns across recent frames to detect deliberate
// RF denial of service.
type JammingDetector struct {
	noiseThreshold        float64
	interferenceThreshold float64
	sampleRate            float64

	frames []frameRecord // Rolling window, oldest first
}

// JammingResult is the detector's verdict for one frame
type JammingResult struct {
	IsJamming   bool
	Confidence  float64
	ThreatLevel ThreatLevel
	Evidence    *JammingEvidence
}

const jammingFrameHistory = 50

// NewJammingDetector creates a jamming detector
func NewJammingDetector(cfg JammingConfig, sampleRate float64) *JammingDetector {
	return &JammingDetector{
		noiseThreshold:        cfg.NoiseThreshold,
		interferenceThreshold: cfg.InterferenceThreshold,
		sampleRate:            sampleRate,
	}
}

// Observe records a processed frame's summary for later pattern analysis.
// Call after Check so the current frame never contributes to its own
// baseline.
func (jd *JammingDetector) Observe(f *SignalFeatures) {
	jd.frames = append(jd.frames, frameRecord{
		Timestamp:  f.Timestamp,
		Frequency:  f.Frequency,
		RSSI:       f.RSSI,
		SNR:        f.SNR,
		NoiseFloor: noiseFloor(f.PowerSpectrum),
	})
	if len(jd.frames) > jammingFrameHistory {
		jd.frames = jd.frames[len(jd.frames)-jammingFrameHistory:]
	}
}

// Check analyzes the current frame against the recorded history
func (jd *JammingDetector) Check(f *SignalFeatures) JammingResult {
	elevation, elevationSignificant := jd.analyzeNoiseFloor(f)
	broadband := detectBroadbandInterference(f.PowerSpectrum)
	patternType, patternConfidence, patternDuration := jd.identifyPattern(f)

	confidence := jd.overallConfidence(elevation, elevationSignificant, broadband, patternConfidence)
	if confidence <= jd.interferenceThreshold {
		return JammingResult{Confidence: confidence, ThreatLevel: ThreatBenign}
	}

	var level ThreatLevel
	switch {
	case confidence > 0.9:
		level = ThreatMalicious
	case confidence > 0.7:
		level = ThreatSuspicious
	default:
		level = ThreatBenign
	}

	duration := patternDuration
	if duration == 0 {
		duration = 1.0
	}

	// The whole digitized bandwidth is potentially affected
	halfBW := jd.sampleRate / 4
	evidence := &JammingEvidence{
		NoiseFloorElevation:   elevation,
		BroadbandInterference: broadband,
		PatternType:           patternType,
		AffectedFrequencies:   [2]float64{f.Frequency - halfBW, f.Frequency + halfBW},
		InterferenceDuration:  duration,
		SNRDegradation:        math.Max(0, 20-f.SNR),
		JammingConfidence:     confidence,
	}

	log.Printf("WARNING: Jamming detected: %s pattern, confidence %.2f, noise elevation %.1f dB",
		patternType, confidence, elevation)

	return JammingResult{
		IsJamming:   true,
		Confidence:  confidence,
		ThreatLevel: level,
		Evidence:    evidence,
	}
}

// analyzeNoiseFloor compares the current frame's noise floor against the
// median of recent frames within 1 MHz of the same center frequency.
func (jd *JammingDetector) analyzeNoiseFloor(f *SignalFeatures) (float64, bool) {
	current := noiseFloor(f.PowerSpectrum)
	if len(f.PowerSpectrum) == 0 {
		return 0, false
	}

	var baselines []float64
	for _, rec := range jd.frames {
		if math.Abs(rec.Frequency-f.Frequency) < 1e6 && rec.NoiseFloor != 0 {
			baselines = append(baselines, rec.NoiseFloor)
		}
	}
	if len(baselines) == 0 {
		return 0, false
	}

	elevation := current - median(baselines)
	return elevation, math.Abs(elevation) > jd.noiseThreshold
}

// noiseFloor estimates a frame's noise floor as the median of its power
// spectrum. The median is robust against the narrow peaks of legitimate
// transmissions.
func noiseFloor(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	return median(spectrum)
}

// detectBroadbandInterference uses spectral flatness: a broadband jammer
// raises the whole spectrum, pushing the geometric mean toward the
// arithmetic mean.
func detectBroadbandInterference(spectrum []float64) bool {
	if len(spectrum) < 10 {
		return false
	}

	var logSum, sum float64
	for _, p := range spectrum {
		v := math.Max(p, 1e-10)
		logSum += math.Log(v)
		sum += p
	}
	arithmeticMean := sum / float64(len(spectrum))
	if arithmeticMean <= 0 {
		return false
	}
	geometricMean := math.Exp(logSum / float64(len(spectrum)))
	flatness := geometricMean / arithmeticMean

	return flatness > 0.8 && arithmeticMean > 1.0
}

// identifyPattern runs the four pattern sub-detectors and returns the
// strongest.
func (jd *JammingDetector) identifyPattern(f *SignalFeatures) (string, float64, float64) {
	type patternResult struct {
		kind       string
		confidence float64
		duration   float64
	}

	continuous := func() patternResult {
		conf, dur := jd.detectContinuous(f)
		return patternResult{JammingContinuous, conf, dur}
	}()
	pulse := func() patternResult {
		conf := jd.detectPulse(f)
		return patternResult{JammingPulse, conf, 0}
	}()
	sweep := func() patternResult {
		conf := jd.detectSweep(f)
		return patternResult{JammingSweep, conf, 0}
	}()
	spot := func() patternResult {
		conf := detectSpot(f.PowerSpectrum)
		return patternResult{JammingSpot, conf, 0}
	}()

	best := continuous
	for _, r := range []patternResult{pulse, sweep, spot} {
		if r.confidence > best.confidence {
			best = r
		}
	}
	return best.kind, best.confidence, best.duration
}

// detectContinuous looks for sustained high power with low variance
// across the last ~10 frames.
func (jd *JammingDetector) detectContinuous(f *SignalFeatures) (float64, float64) {
	recent := lastN(jd.frames, 10)
	if len(recent) < 5 {
		return 0, 0
	}

	powers := make([]float64, 0, len(recent)+1)
	for _, rec := range recent {
		powers = append(powers, rec.RSSI)
	}
	powers = append(powers, f.RSSI)

	meanPower := stat.Mean(powers, nil)
	variance := popStdDev(powers)
	variance *= variance

	if meanPower > -30 && variance < 25 {
		confidence := clamp01((meanPower + 50) / 50)
		duration := float64(len(recent)) * 0.1
		return confidence, duration
	}
	return 0, 0
}

// detectPulse looks for regularly spaced power peaks across the last
// ~20 frames.
func (jd *JammingDetector) detectPulse(f *SignalFeatures) float64 {
	recent := lastN(jd.frames, 20)
	if len(recent) < 10 {
		return 0
	}

	powers := make([]float64, 0, len(recent)+1)
	times := make([]float64, 0, len(recent)+1)
	for _, rec := range recent {
		powers = append(powers, rec.RSSI)
		times = append(times, rec.Timestamp)
	}
	powers = append(powers, f.RSSI)
	times = append(times, f.Timestamp)

	threshold := stat.Mean(powers, nil) + 1.5*popStdDev(powers)

	var peakTimes []float64
	for i, p := range powers {
		if p > threshold {
			peakTimes = append(peakTimes, times[i])
		}
	}
	if len(peakTimes) < 3 {
		return 0
	}

	intervals := make([]float64, len(peakTimes)-1)
	for i := 1; i < len(peakTimes); i++ {
		intervals[i-1] = peakTimes[i] - peakTimes[i-1]
	}
	meanInterval := stat.Mean(intervals, nil)
	if meanInterval <= 0 {
		return 0
	}
	variance := popStdDev(intervals)
	variance *= variance

	// Regular pulses have a low coefficient of variation
	if variance/(meanInterval*meanInterval) < 0.1 {
		return math.Min(1, float64(len(peakTimes))/10)
	}
	return 0
}

// detectSweep looks for a consistent frequency progression at high power
// across the last ~15 frames.
func (jd *JammingDetector) detectSweep(f *SignalFeatures) float64 {
	recent := lastN(jd.frames, 15)
	if len(recent) < 8 {
		return 0
	}

	freqs := make([]float64, 0, len(recent)+1)
	powers := make([]float64, 0, len(recent)+1)
	for _, rec := range recent {
		freqs = append(freqs, rec.Frequency)
		powers = append(powers, rec.RSSI)
	}
	freqs = append(freqs, f.Frequency)
	powers = append(powers, f.RSSI)

	deltas := make([]float64, len(freqs)-1)
	for i := 1; i < len(freqs); i++ {
		deltas[i-1] = freqs[i] - freqs[i-1]
	}
	if len(deltas) <= 3 {
		return 0
	}

	positive, negative := 0, 0
	for _, d := range deltas {
		if d > 1000 {
			positive++
		} else if d < -1000 {
			negative++
		}
	}
	consistency := float64(maxInt(positive, negative)) / float64(len(deltas))
	meanPower := stat.Mean(powers, nil)

	if consistency > 0.6 && meanPower > -40 {
		return clamp01(consistency * (meanPower + 60) / 60)
	}
	return 0
}

// detectSpot looks for a single dominant narrowband peak in the current
// spectrum.
func detectSpot(spectrum []float64) float64 {
	if len(spectrum) <= 10 {
		return 0
	}

	maxPower := spectrum[0]
	var sum float64
	for _, p := range spectrum {
		if p > maxPower {
			maxPower = p
		}
		sum += p
	}
	meanPower := sum / float64(len(spectrum))
	if meanPower <= 0 {
		return 0
	}

	ratio := maxPower / meanPower
	if ratio > 10 && maxPower > 2.0 {
		return math.Min(1, ratio/10)
	}
	return 0
}

// overallConfidence combines the fired indicators with weights
// noise 0.3, broadband 0.2, pattern 0.5, requiring either two
// indicators or one very strong one.
func (jd *JammingDetector) overallConfidence(elevation float64, elevationSignificant, broadband bool, patternConfidence float64) float64 {
	var weightedSum, totalWeight float64
	fired := 0

	if elevationSignificant {
		factor := math.Min(1, math.Abs(elevation)/(2*jd.noiseThreshold))
		weightedSum += factor * 0.3
		totalWeight += 0.3
		fired++
	}
	if broadband {
		weightedSum += 1.0 * 0.2
		totalWeight += 0.2
		fired++
	}
	if patternConfidence > 0.1 {
		weightedSum += patternConfidence * 0.5
		totalWeight += 0.5
		fired++
	}

	if totalWeight == 0 {
		return 0
	}
	confidence := weightedSum / totalWeight

	if fired >= 2 || (fired == 1 && confidence > 0.8) {
		if confidence > 0.2 {
			return confidence
		}
	}
	return 0
}

func lastN(frames []frameRecord, n int) []frameRecord {
	if len(frames) <= n {
		return frames
	}
	return frames[len(frames)-n:]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
