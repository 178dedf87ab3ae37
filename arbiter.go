package main

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Indicator weights used when combining detector verdicts into a single
// threat level.
var indicatorWeights = map[string]float64{
	IndicatorReplay:     0.9,
	IndicatorJamming:    0.8,
	IndicatorBruteForce: 0.7,
}

// Recommended actions per threat kind
var threatActions = map[string]string{
	IndicatorReplay:     "Block signal, investigate source",
	IndicatorJamming:    "Locate jammer, switch frequency",
	IndicatorBruteForce: "Implement rate limiting, monitor source",
}

// ThreatArbiter merges the three detectors' verdicts into one
// DetectionEvent per classified signal. It is the sole writer into the
// signal history: the current detection is appended before the detectors
// run, so their view of history always includes every earlier frame plus
// the signal under analysis.
type ThreatArbiter struct {
	history    *SignalHistory
	replay     *ReplayDetector
	jamming    *JammingDetector
	bruteForce *BruteForceDetector

	frequency  uint64
	sampleRate uint32
}

// NewThreatArbiter wires the arbiter to the shared history and detectors
func NewThreatArbiter(history *SignalHistory, replay *ReplayDetector, jamming *JammingDetector, bruteForce *BruteForceDetector, frequency uint64, sampleRate uint32) *ThreatArbiter {
	return &ThreatArbiter{
		history:    history,
		replay:     replay,
		jamming:    jamming,
		bruteForce: bruteForce,
		frequency:  frequency,
		sampleRate: sampleRate,
	}
}

// Analyze runs all detectors against one classified detection and merges
// their verdicts. Detector failures are contained: a panicking detector
// is logged and treated as "no threat".
func (ta *ThreatArbiter) Analyze(d *Detection) *DetectionEvent {
	// Append first so the detectors' rate analysis counts this signal
	ta.history.Add(*d)

	var (
		wg          sync.WaitGroup
		replayRes   ReplayResult
		jammingRes  JammingResult
		bruteRes    BruteForceResult
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		defer recoverDetector("replay")
		replayRes = ta.replay.Check(d)
	}()
	go func() {
		defer wg.Done()
		defer recoverDetector("jamming")
		jammingRes = ta.jamming.Check(&d.Features)
	}()
	go func() {
		defer wg.Done()
		defer recoverDetector("brute force")
		bruteRes = ta.bruteForce.Check(d)
	}()
	wg.Wait()

	var indicators []ThreatIndicator
	if replayRes.IsReplay {
		indicators = append(indicators, ThreatIndicator{
			Kind:       IndicatorReplay,
			Confidence: replayRes.Confidence,
			Evidence:   replayRes.Evidence,
		})
	}
	if jammingRes.IsJamming {
		indicators = append(indicators, ThreatIndicator{
			Kind:       IndicatorJamming,
			Confidence: jammingRes.Confidence,
			Evidence:   jammingRes.Evidence,
		})
	}
	if bruteRes.IsBruteForce {
		indicators = append(indicators, ThreatIndicator{
			Kind:       IndicatorBruteForce,
			Confidence: bruteRes.Confidence,
			Evidence:   bruteRes.Evidence,
		})
	}

	if len(indicators) == 0 {
		return ta.benignEvent(d)
	}
	return ta.threatEvent(d, indicators)
}

// AnalyzeFrame handles frames that produced no classified detection.
// Jamming does not need a recognizable waveform, so the jamming detector
// still runs; a verdict is attributed to a synthesized unknown signal.
func (ta *ThreatArbiter) AnalyzeFrame(f *SignalFeatures) *DetectionEvent {
	defer recoverDetector("jamming")

	result := ta.jamming.Check(f)
	if !result.IsJamming {
		return nil
	}

	d := Detection{
		ID:         uuid.NewString(),
		Type:       SignalUnknown,
		Confidence: result.Confidence,
		Features:   *f,
		Timestamp:  f.Timestamp,
	}
	ta.history.Add(d)

	return ta.threatEvent(&d, []ThreatIndicator{{
		Kind:       IndicatorJamming,
		Confidence: result.Confidence,
		Evidence:   result.Evidence,
	}})
}

// benignEvent wraps a threat-free detection for broadcast
func (ta *ThreatArbiter) benignEvent(d *Detection) *DetectionEvent {
	return &DetectionEvent{
		ID:                uuid.NewString(),
		Kind:              d.Type + "_transmission",
		ThreatLevel:       0,
		Confidence:        d.Confidence,
		SignalType:        d.Type,
		Timestamp:         d.Timestamp,
		FrequencyMHz:      float64(ta.frequency) / 1e6,
		SampleRate:        ta.sampleRate,
		Features:          d.Features.Display(),
		Indicators:        []ThreatIndicator{},
		RecommendedAction: "Monitor",
	}
}

// threatEvent merges indicators: the highest-confidence indicator names
// the event and supplies the primary evidence; the threat level is the
// weighted average of all indicator confidences.
func (ta *ThreatArbiter) threatEvent(d *Detection, indicators []ThreatIndicator) *DetectionEvent {
	primary := indicators[0]
	for _, ind := range indicators[1:] {
		if ind.Confidence > primary.Confidence {
			primary = ind
		}
	}

	var weightedSum, totalWeight float64
	for _, ind := range indicators {
		w, ok := indicatorWeights[ind.Kind]
		if !ok {
			w = 0.5
		}
		weightedSum += ind.Confidence * w
		totalWeight += w
	}
	threatLevel := 0.0
	if totalWeight > 0 {
		threatLevel = clamp01(weightedSum / totalWeight)
	}

	kind := primary.Kind
	action, ok := threatActions[kind]
	if !ok {
		kind = "unknown_threat"
		action = "Monitor and analyze"
	}

	log.Printf("Threat event: %s on %s signal, threat level %.2f, confidence %.2f",
		kind, d.Type, threatLevel, primary.Confidence)

	return &DetectionEvent{
		ID:                uuid.NewString(),
		Kind:              kind,
		ThreatLevel:       threatLevel,
		Confidence:        clamp01(primary.Confidence),
		SignalType:        d.Type,
		Timestamp:         d.Timestamp,
		FrequencyMHz:      float64(ta.frequency) / 1e6,
		SampleRate:        ta.sampleRate,
		Features:          d.Features.Display(),
		Indicators:        indicators,
		PrimaryEvidence:   primary.Evidence,
		RecommendedAction: action,
	}
}

// recoverDetector contains a detector panic; the pipeline must never die
// because one detector misbehaved on unusual input.
func recoverDetector(name string) {
	if r := recover(); r != nil {
		log.Printf("ERROR: %s detector panicked: %v", name, r)
	}
}
