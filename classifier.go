package main

import (
	"log"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Signal types emitted by the classifier
const (
	SignalKeyFob  = "key_fob"
	SignalTPMS    = "tpms"
	SignalUnknown = "unknown"
)

// Detection is one classified automotive signal. Immutable after creation.
type Detection struct {
	ID                    string          `json:"id"`
	Type                  string          `json:"signal_type"`
	Confidence            float64         `json:"confidence"`
	Features              SignalFeatures  `json:"features"`
	Timestamp             float64         `json:"timestamp"`
	ClassificationDetails map[string]bool `json:"classification_details"`
}

// PatternClassifier scores extracted features against known automotive
// waveform signatures (key fob, TPMS). Each signature is evaluated
// independently; a frame can yield zero, one, or both detections.
type PatternClassifier struct {
	minConfidence float64
	minSNR        float64
}

// NewPatternClassifier creates a classifier with the standard thresholds
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{
		minConfidence: 0.6,
		minSNR:        10,
	}
}

// Classify evaluates all signatures against the features and returns the
// detections that clear the confidence threshold.
func (pc *PatternClassifier) Classify(features *SignalFeatures) []Detection {
	var detections []Detection

	if d, ok := pc.matchKeyFob(features); ok {
		detections = append(detections, d)
	}
	if d, ok := pc.matchTPMS(features); ok {
		detections = append(detections, d)
	}

	if DebugMode && len(detections) > 0 {
		for _, d := range detections {
			log.Printf("DEBUG: Classified %s with confidence %.2f", d.Type, d.Confidence)
		}
	}

	return detections
}

// matchKeyFob scores the key fob signature: FSK modulation, 3-8 bursts
// at 10-20 ms spacing, 20-50 kHz deviation, 10-100 kHz bandwidth.
func (pc *PatternClassifier) matchKeyFob(f *SignalFeatures) (Detection, bool) {
	confidence := 0.0
	details := map[string]bool{}

	if f.ModulationType == ModFSK {
		confidence += 0.30
		details["modulation_match"] = true
	}
	if f.BurstCount >= 3 && f.BurstCount <= 8 {
		confidence += 0.20
		details["burst_count_match"] = true
	}
	if len(f.InterBurstIntervals) > 0 {
		avg := stat.Mean(f.InterBurstIntervals, nil)
		if avg >= 10e-3 && avg <= 20e-3 {
			confidence += 0.20
			details["timing_match"] = true
		}
	}
	if f.FrequencyDeviation >= 20e3 && f.FrequencyDeviation <= 50e3 {
		confidence += 0.15
		details["deviation_match"] = true
	}
	if f.SignalBandwidth >= 10e3 && f.SignalBandwidth <= 100e3 {
		confidence += 0.10
		details["bandwidth_match"] = true
	}
	if f.SNR >= pc.minSNR {
		confidence += 0.05
		details["snr_adequate"] = true
	}

	if confidence < pc.minConfidence {
		return Detection{}, false
	}
	return pc.newDetection(SignalKeyFob, confidence, f, details), true
}

// matchTPMS scores the TPMS signature: FSK, 1-3 longer bursts, 10-30 kHz
// deviation, 5-50 kHz bandwidth.
func (pc *PatternClassifier) matchTPMS(f *SignalFeatures) (Detection, bool) {
	confidence := 0.0
	details := map[string]bool{}

	if f.ModulationType == ModFSK {
		confidence += 0.30
		details["modulation_match"] = true
	}
	if f.BurstCount >= 1 && f.BurstCount <= 3 {
		confidence += 0.25
		details["burst_count_match"] = true
	}
	if f.FrequencyDeviation >= 10e3 && f.FrequencyDeviation <= 30e3 {
		confidence += 0.20
		details["deviation_match"] = true
	}
	if f.SignalBandwidth >= 5e3 && f.SignalBandwidth <= 50e3 {
		confidence += 0.15
		details["bandwidth_match"] = true
	}
	if f.SNR >= pc.minSNR {
		confidence += 0.10
		details["snr_adequate"] = true
	}

	if confidence < pc.minConfidence {
		return Detection{}, false
	}
	return pc.newDetection(SignalTPMS, confidence, f, details), true
}

func (pc *PatternClassifier) newDetection(signalType string, confidence float64, f *SignalFeatures, details map[string]bool) Detection {
	return Detection{
		ID:                    uuid.NewString(),
		Type:                  signalType,
		Confidence:            clamp01(confidence),
		Features:              *f,
		Timestamp:             f.Timestamp,
		ClassificationDetails: details,
	}
}
