package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReplayEvent() DetectionEvent {
	return DetectionEvent{
		Type:        "signal_detection",
		ID:          "evt-1",
		Kind:        IndicatorReplay,
		ThreatLevel: 0.92,
		Confidence:  0.97,
		SignalType:  SignalKeyFob,
		Timestamp:   1700000060.25,
		FrequencyMHz: 433.92,
		SampleRate:  2048000,
		Features: EventFeatures{
			RSSI:            -45,
			SNR:             20,
			ModulationType:  ModFSK,
			Bandwidth:       50e3,
			BurstCount:      4,
			PeakFrequencies: []float64{10e3, 40e3},
		},
		Indicators: []ThreatIndicator{{
			Kind:       IndicatorReplay,
			Confidence: 0.97,
			Evidence: ReplayEvidence{
				OriginalTimestamp:        1700000000.25,
				ReplayTimestamp:          1700000060.25,
				SignalSimilarity:         0.97,
				PowerSpectrumCorrelation: 0.99,
				BurstTimingSimilarity:    1,
				TimingAnomaly: TimingAnomaly{
					BurstCountMatch:    true,
					TimingPrecision:    0.0002,
					PowerDifference:    12,
					FrequencyStability: true,
				},
			},
		}},
		PrimaryEvidence: ReplayEvidence{
			OriginalTimestamp: 1700000000.25,
			ReplayTimestamp:   1700000060.25,
			SignalSimilarity:  0.97,
		},
		RecommendedAction: "Block signal, investigate source",
		NFCCorrelated:     true,
		NFCTagID:          "04:a2:5f:11",
	}
}

// Encode/decode is lossless over the documented field set
func TestDetectionEventJSONRoundTrip(t *testing.T) {
	original := sampleReplayEvent()

	data, err := json.Marshal(&original)
	require.NoError(t, err)

	var decoded DetectionEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.Equal(t, original.ThreatLevel, decoded.ThreatLevel)
	assert.Equal(t, original.Confidence, decoded.Confidence)
	assert.Equal(t, original.SignalType, decoded.SignalType)
	assert.Equal(t, original.Timestamp, decoded.Timestamp)
	assert.Equal(t, original.FrequencyMHz, decoded.FrequencyMHz)
	assert.Equal(t, original.SampleRate, decoded.SampleRate)
	assert.Equal(t, original.Features, decoded.Features)
	assert.Equal(t, original.RecommendedAction, decoded.RecommendedAction)
	assert.Equal(t, original.NFCCorrelated, decoded.NFCCorrelated)
	assert.Equal(t, original.NFCTagID, decoded.NFCTagID)

	require.Len(t, decoded.Indicators, 1)
	ev, ok := decoded.Indicators[0].Evidence.(ReplayEvidence)
	require.True(t, ok)
	assert.Equal(t, original.Indicators[0].Evidence, ev)

	primary, ok := decoded.PrimaryEvidence.(ReplayEvidence)
	require.True(t, ok)
	assert.Equal(t, 0.97, primary.SignalSimilarity)
}

func TestBruteForceEvidenceRoundTrip(t *testing.T) {
	event := DetectionEvent{
		ID:          "evt-2",
		Kind:        IndicatorBruteForce,
		ThreatLevel: 0.75,
		Confidence:  0.8,
		SignalType:  SignalKeyFob,
		PrimaryEvidence: BruteForceEvidence{
			ThreatLevel: BruteModerate,
			AttackType:  AttackSustained,
			Windows: map[string]WindowStats{
				"medium": {SignalCount: 12, SignalRate: 12, WindowSeconds: 60},
			},
			Statistics:         AttackStatistics{TotalAttempts: 12, PeakRatePerMinute: 14},
			SignalRate:         12,
			RecommendedActions: recommendedActions[BruteModerate],
		},
	}

	data, err := json.Marshal(&event)
	require.NoError(t, err)

	var decoded DetectionEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	evidence, ok := decoded.PrimaryEvidence.(BruteForceEvidence)
	require.True(t, ok)
	assert.Equal(t, BruteModerate, evidence.ThreatLevel)
	assert.Equal(t, 12, evidence.Statistics.TotalAttempts)
	assert.Equal(t, 12, evidence.Windows["medium"].SignalCount)
	assert.Contains(t, evidence.RecommendedActions[0], "rate limiting")
}

func TestThreatLevelJSON(t *testing.T) {
	for _, level := range []ThreatLevel{ThreatBenign, ThreatSuspicious, ThreatMalicious} {
		data, err := json.Marshal(level)
		require.NoError(t, err)

		var decoded ThreatLevel
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, level, decoded)
	}

	var bad ThreatLevel
	assert.Error(t, json.Unmarshal([]byte(`"Catastrophic"`), &bad))
}

func TestBenignEventOmitsNFCFields(t *testing.T) {
	event := DetectionEvent{
		ID:   "evt-3",
		Kind: "key_fob_transmission",
	}
	data, err := json.Marshal(&event)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "nfc_correlated")
	assert.NotContains(t, string(data), "nfc_tag_id")
}
