package main

import (
	"encoding/json"
	"fmt"
)

// ThreatLevel classifies how hostile a detection is judged to be
type ThreatLevel int

const (
	ThreatBenign ThreatLevel = iota
	ThreatSuspicious
	ThreatMalicious
)

// String returns the wire representation of the threat level
func (t ThreatLevel) String() string {
	switch t {
	case ThreatSuspicious:
		return "Suspicious"
	case ThreatMalicious:
		return "Malicious"
	default:
		return "Benign"
	}
}

// MarshalJSON encodes the threat level as its string form
func (t ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the string form of a threat level
func (t *ThreatLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Benign":
		*t = ThreatBenign
	case "Suspicious":
		*t = ThreatSuspicious
	case "Malicious":
		*t = ThreatMalicious
	default:
		return fmt.Errorf("unknown threat level %q", s)
	}
	return nil
}

// Indicator kinds produced by the detectors
const (
	IndicatorReplay     = "replay"
	IndicatorJamming    = "jamming"
	IndicatorBruteForce = "brute_force"
)

// TimingAnomaly captures the timing irregularities between an original
// signal and a suspected replay of it.
type TimingAnomaly struct {
	BurstCountMatch    bool    `json:"burst_count_match"`
	TimingPrecision    float64 `json:"timing_precision"` // Stddev of per-burst timing deltas, seconds
	PowerDifference    float64 `json:"power_difference"` // dB
	FrequencyStability bool    `json:"frequency_stability"`
}

// ReplayEvidence is the technical proof collected for a replay verdict
type ReplayEvidence struct {
	OriginalTimestamp        float64       `json:"original_timestamp"`
	ReplayTimestamp          float64       `json:"replay_timestamp"`
	SignalSimilarity         float64       `json:"signal_similarity"`
	TimingAnomaly            TimingAnomaly `json:"timing_anomaly"`
	PowerSpectrumCorrelation float64       `json:"power_spectrum_correlation"`
	BurstTimingSimilarity    float64       `json:"burst_timing_similarity"`
	FrequencyDeviation       float64       `json:"frequency_deviation"` // Hz between original and replay carriers
}

// Jamming pattern kinds
const (
	JammingContinuous = "continuous"
	JammingPulse      = "pulse"
	JammingSweep      = "sweep"
	JammingSpot       = "spot"
)

// JammingEvidence is the technical proof collected for a jamming verdict
type JammingEvidence struct {
	NoiseFloorElevation    float64    `json:"noise_floor_elevation"` // dB above baseline
	BroadbandInterference  bool       `json:"broadband_interference"`
	PatternType            string     `json:"jamming_pattern_type"`
	AffectedFrequencies    [2]float64 `json:"affected_frequencies"` // Hz, low..high
	InterferenceDuration   float64    `json:"interference_duration"` // Seconds
	SNRDegradation         float64    `json:"signal_to_noise_degradation"` // dB
	JammingConfidence      float64    `json:"jamming_confidence"`
}

// Brute force attack types
const (
	AttackRapidBurst    = "rapid_burst"
	AttackSustained     = "sustained_brute_force"
	AttackPersistent    = "persistent"
	AttackUnknown       = "unknown"
)

// WindowStats summarizes signal activity inside one analysis window
type WindowStats struct {
	SignalCount     int     `json:"signal_count"`
	SignalRate      float64 `json:"signal_rate_per_minute"`
	WindowSeconds   float64 `json:"time_window_seconds"`
	RapidBurstCount int     `json:"rapid_burst_count"`
	AverageInterval float64 `json:"average_interval"`
	MinimumInterval float64 `json:"minimum_interval"`
}

// AttackStatistics is the statistical summary attached to brute force evidence
type AttackStatistics struct {
	TotalAttempts        int     `json:"total_attempts"`
	AverageInterval      float64 `json:"average_interval_seconds"`
	IntervalStdDev       float64 `json:"interval_standard_deviation"`
	IntervalConsistency  float64 `json:"interval_consistency_score"`
	AttackDuration       float64 `json:"attack_duration_seconds"`
	PeakRatePerMinute    float64 `json:"peak_rate_per_minute"`
}

// BruteForceEvidence is the technical proof collected for a brute force verdict
type BruteForceEvidence struct {
	ThreatLevel        string                 `json:"threat_level"` // suspicious / moderate / high / critical
	AttackType         string                 `json:"attack_type"`
	Windows            map[string]WindowStats `json:"temporal_evidence"`
	Statistics         AttackStatistics       `json:"statistical_analysis"`
	SignalRate         float64                `json:"signal_rate"`
	ConsistencyScore   float64                `json:"consistency_score"`
	IdenticalSignals   int                    `json:"identical_signals"`
	RecommendedActions []string               `json:"recommended_actions"`
}

// ThreatIndicator is one detector's verdict attached to an event
type ThreatIndicator struct {
	Kind       string      `json:"type"`
	Confidence float64     `json:"confidence"`
	Evidence   interface{} `json:"evidence"`
}

// EventFeatures is the display subset of SignalFeatures carried on the wire
type EventFeatures struct {
	RSSI            float64   `json:"rssi"`
	SNR             float64   `json:"snr"`
	ModulationType  string    `json:"modulation_type"`
	Bandwidth       float64   `json:"signal_bandwidth"`
	BurstCount      int       `json:"burst_count"`
	PeakFrequencies []float64 `json:"peak_frequencies"`
}

// DetectionEvent is the broadcast unit sent to every subscriber
type DetectionEvent struct {
	Type              string            `json:"type"` // Always "signal_detection" on the wire
	ID                string            `json:"id"`
	Kind              string            `json:"event_type"`
	ThreatLevel       float64           `json:"threat_level"` // 0..1
	Confidence        float64           `json:"confidence"`   // 0..1
	SignalType        string            `json:"signal_type"`
	Timestamp         float64           `json:"timestamp"`
	FrequencyMHz      float64           `json:"frequency_mhz"`
	SampleRate        uint32            `json:"sample_rate"`
	Features          EventFeatures     `json:"features"`
	Indicators        []ThreatIndicator `json:"threat_indicators"`
	PrimaryEvidence   interface{}       `json:"evidence,omitempty"`
	RecommendedAction string            `json:"recommended_action"`
	NFCCorrelated     bool              `json:"nfc_correlated,omitempty"`
	NFCTagID          string            `json:"nfc_tag_id,omitempty"`
}

// decodeEvidence re-types a decoded evidence payload according to the
// indicator kind, so JSON round trips preserve the evidence structure.
func decodeEvidence(kind string, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case IndicatorReplay:
		var ev ReplayEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case IndicatorJamming:
		var ev JammingEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case IndicatorBruteForce:
		var ev BruteForceEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		var ev map[string]interface{}
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
}

// UnmarshalJSON decodes a DetectionEvent, restoring typed evidence for
// the known indicator kinds.
func (e *DetectionEvent) UnmarshalJSON(data []byte) error {
	type wireIndicator struct {
		Kind       string          `json:"type"`
		Confidence float64         `json:"confidence"`
		Evidence   json.RawMessage `json:"evidence"`
	}
	type wireEvent struct {
		Type              string          `json:"type"`
		ID                string          `json:"id"`
		Kind              string          `json:"event_type"`
		ThreatLevel       float64         `json:"threat_level"`
		Confidence        float64         `json:"confidence"`
		SignalType        string          `json:"signal_type"`
		Timestamp         float64         `json:"timestamp"`
		FrequencyMHz      float64         `json:"frequency_mhz"`
		SampleRate        uint32          `json:"sample_rate"`
		Features          EventFeatures   `json:"features"`
		Indicators        []wireIndicator `json:"threat_indicators"`
		PrimaryEvidence   json.RawMessage `json:"evidence"`
		RecommendedAction string          `json:"recommended_action"`
		NFCCorrelated     bool            `json:"nfc_correlated"`
		NFCTagID          string          `json:"nfc_tag_id"`
	}

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	e.Type = w.Type
	e.ID = w.ID
	e.Kind = w.Kind
	e.ThreatLevel = w.ThreatLevel
	e.Confidence = w.Confidence
	e.SignalType = w.SignalType
	e.Timestamp = w.Timestamp
	e.FrequencyMHz = w.FrequencyMHz
	e.SampleRate = w.SampleRate
	e.Features = w.Features
	e.RecommendedAction = w.RecommendedAction
	e.NFCCorrelated = w.NFCCorrelated
	e.NFCTagID = w.NFCTagID

	e.Indicators = nil
	for _, wi := range w.Indicators {
		ev, err := decodeEvidence(wi.Kind, wi.Evidence)
		if err != nil {
			return fmt.Errorf("indicator %s evidence: %w", wi.Kind, err)
		}
		e.Indicators = append(e.Indicators, ThreatIndicator{
			Kind:       wi.Kind,
			Confidence: wi.Confidence,
			Evidence:   ev,
		})
	}

	ev, err := decodeEvidence(e.Kind, w.PrimaryEvidence)
	if err != nil {
		return fmt.Errorf("primary evidence: %w", err)
	}
	e.PrimaryEvidence = ev

	return nil
}
