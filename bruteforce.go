package main

import (
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Brute force threat levels, in escalation order
const (
	BruteBenign     = "benign"
	BruteSuspicious = "suspicious"
	BruteModerate   = "moderate"
	BruteHigh       = "high"
	BruteCritical   = "critical"
)

var bruteLevelRank = map[string]int{
	BruteBenign:     0,
	BruteSuspicious: 1,
	BruteModerate:   2,
	BruteHigh:       3,
	BruteCritical:   4,
}

// bruteLevelUp promotes a level one step, never past critical
func bruteLevelUp(level string) string {
	switch level {
	case BruteSuspicious:
		return BruteModerate
	case BruteModerate:
		return BruteHigh
	case BruteHigh:
		return BruteCritical
	}
	return level
}

// recommendedActions maps a brute force threat level to its response
// playbook.
var recommendedActions = map[string][]string{
	BruteSuspicious: {
		"Monitor signal source for escalation",
		"Log all attempts for pattern analysis",
		"Consider implementing rate limiting",
	},
	BruteModerate: {
		"Implement immediate rate limiting",
		"Alert security personnel",
		"Block signal source if possible",
		"Increase monitoring sensitivity",
	},
	BruteHigh: {
		"Immediately block signal source",
		"Alert security team urgently",
		"Implement emergency protocols",
		"Consider frequency hopping if available",
		"Document attack for forensic analysis",
	},
	BruteCritical: {
		"EMERGENCY: Implement all countermeasures",
		"Isolate affected systems immediately",
		"Contact law enforcement if appropriate",
		"Switch to backup communication channels",
		"Initiate incident response procedures",
		"Preserve all evidence for investigation",
	},
}

// intervalStats summarizes the gaps between consecutive same-type signals
type intervalStats struct {
	Count   int
	Average float64
	Minimum float64
	Maximum float64
	StdDev  float64
}

// windowAnalysis is the per-window temporal picture
type windowAnalysis struct {
	Name        string
	Duration    float64
	SignalCount int
	SignalRate  float64 // Per minute
	Intervals   intervalStats
	RapidBursts int
	Sustained   bool
}

// BruteForceDetector performs multi-window rate analysis over the
// per-type signal history, with escalating threat levels. The rate and
// escalation thresholds come from configuration.
type BruteForceDetector struct {
	history *SignalHistory
	cfg     BruteForceConfig
}

// BruteForceResult is the detector's verdict for one detection
type BruteForceResult struct {
	IsBruteForce bool
	Confidence   float64
	ThreatLevel  ThreatLevel
	Evidence     *BruteForceEvidence
}

// NewBruteForceDetector creates a brute force detector over the shared
// history.
func NewBruteForceDetector(history *SignalHistory, cfg BruteForceConfig) *BruteForceDetector {
	return &BruteForceDetector{history: history, cfg: cfg}
}

// Check analyzes signal rates for the detection's type across the three
// analysis windows and classifies the threat.
func (bd *BruteForceDetector) Check(d *Detection) BruteForceResult {
	windows := map[string]windowAnalysis{
		"short":  bd.analyzeWindow("short", bd.cfg.ShortWindow, d),
		"medium": bd.analyzeWindow("medium", bd.cfg.MediumWindow, d),
		"long":   bd.analyzeWindow("long", bd.cfg.LongWindow, d),
	}

	attackType, patternConfidence := bd.analyzePattern(windows)
	consistency, identical := bd.analyzeConsistency(d)

	level, confidence := bd.escalate(windows, patternConfidence)
	if level == BruteBenign {
		return BruteForceResult{ThreatLevel: ThreatBenign}
	}

	evidence := bd.collectEvidence(windows, attackType, level, consistency, identical)
	log.Printf("WARNING: Brute force attack detected: %s (%.1f signals/min, confidence %.2f)",
		level, windows["medium"].SignalRate, confidence)

	threatLevel := ThreatSuspicious
	if bruteLevelRank[level] >= bruteLevelRank[BruteHigh] {
		threatLevel = ThreatMalicious
	}

	return BruteForceResult{
		IsBruteForce: true,
		Confidence:   confidence,
		ThreatLevel:  threatLevel,
		Evidence:     evidence,
	}
}

// analyzeWindow computes the temporal picture of one analysis window
func (bd *BruteForceDetector) analyzeWindow(name string, duration float64, d *Detection) windowAnalysis {
	recent := bd.history.RecentByType(d.Type, duration)

	timestamps := make([]float64, 0, len(recent))
	for _, s := range recent {
		timestamps = append(timestamps, s.Detection.Timestamp)
	}
	sort.Float64s(timestamps)

	intervals := computeIntervalStats(timestamps)

	rapid := 0
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i]-timestamps[i-1] <= bd.cfg.RapidBurstInterval {
			rapid++
		}
	}

	return windowAnalysis{
		Name:        name,
		Duration:    duration,
		SignalCount: len(recent),
		SignalRate:  float64(len(recent)) / (duration / 60),
		Intervals:   intervals,
		RapidBursts: rapid,
		Sustained:   len(recent) > 0 && duration >= bd.cfg.SustainedDuration,
	}
}

// analyzePattern classifies the attack shape and scores how confidently
// the rate pattern matches a known brute force signature.
func (bd *BruteForceDetector) analyzePattern(windows map[string]windowAnalysis) (string, float64) {
	attackType := AttackUnknown
	confidence := 0.0

	short := windows["short"]
	if short.RapidBursts > 0 {
		attackType = AttackRapidBurst
		confidence = math.Min(1, float64(short.RapidBursts)/5)
	}

	medium := windows["medium"]
	if medium.SignalRate > bd.cfg.SuspiciousRate {
		if attackType == AttackUnknown {
			attackType = AttackSustained
		}
		confidence = math.Max(confidence, math.Min(1, medium.SignalRate/bd.cfg.CriticalRate))
	}

	long := windows["long"]
	if long.Sustained && long.SignalCount > 10 {
		if attackType == AttackUnknown {
			attackType = AttackPersistent
		}
		confidence = math.Max(confidence, 0.8)
	}

	return attackType, confidence
}

// escalate derives the base threat level from the medium-window rate and
// applies the escalation rules, in order, never demoting.
func (bd *BruteForceDetector) escalate(windows map[string]windowAnalysis, patternConfidence float64) (string, float64) {
	medium := windows["medium"]
	rate := medium.SignalRate

	var level string
	var confidence float64
	switch {
	case rate >= bd.cfg.CriticalRate:
		level, confidence = BruteCritical, 0.9
	case rate >= bd.cfg.HighRate:
		level, confidence = BruteHigh, 0.8
	case rate >= bd.cfg.ModerateRate:
		level, confidence = BruteModerate, 0.7
	case rate >= bd.cfg.SuspiciousRate:
		level, confidence = BruteSuspicious, 0.6
	default:
		return BruteBenign, 0
	}

	// Rates barely over the suspicious threshold get a head start only
	// on a near-certain pattern match
	if level == BruteSuspicious && rate <= bd.cfg.ModerateRate && patternConfidence > 0.95 {
		level = BruteModerate
	}
	// The generic pattern bump re-reads the level, so the special case
	// above compounds with it
	if patternConfidence > 0.95 {
		level = bruteLevelUp(level)
	}

	short := windows["short"]
	if short.RapidBursts > 10 {
		confidence = math.Min(1, confidence+0.2)
		if level == BruteSuspicious {
			level = BruteModerate
		}
	}

	long := windows["long"]
	if long.Sustained && long.SignalCount > 50 {
		confidence = math.Min(1, confidence+0.1)
	}

	return level, confidence
}

// analyzeConsistency scores how identical the recent same-type signals
// are: a brute forcer replays near-identical attempts.
func (bd *BruteForceDetector) analyzeConsistency(d *Detection) (float64, int) {
	recent := bd.history.RecentByType(d.Type, bd.cfg.MediumWindow)
	if len(recent) < 2 {
		return 0, 0
	}

	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	identical := 0
	scores := make([]float64, 0, len(recent))
	for i := range recent {
		if recent[i].Detection.ID == d.ID {
			continue
		}
		similarity := SignalSimilarity(&d.Features, &recent[i].Detection.Features)
		scores = append(scores, similarity)
		if similarity > 0.95 {
			identical++
		}
	}
	if len(scores) == 0 {
		return 0, 0
	}
	return stat.Mean(scores, nil), identical
}

func (bd *BruteForceDetector) collectEvidence(windows map[string]windowAnalysis, attackType, level string, consistency float64, identical int) *BruteForceEvidence {
	evidence := &BruteForceEvidence{
		ThreatLevel:        level,
		AttackType:         attackType,
		Windows:            map[string]WindowStats{},
		SignalRate:         windows["medium"].SignalRate,
		ConsistencyScore:   consistency,
		IdenticalSignals:   identical,
		RecommendedActions: recommendedActions[level],
	}

	for name, w := range windows {
		evidence.Windows[name] = WindowStats{
			SignalCount:     w.SignalCount,
			SignalRate:      w.SignalRate,
			WindowSeconds:   w.Duration,
			RapidBurstCount: w.RapidBursts,
			AverageInterval: w.Intervals.Average,
			MinimumInterval: w.Intervals.Minimum,
		}
	}

	medium := windows["medium"]
	if medium.Intervals.Count > 0 {
		evidence.Statistics = AttackStatistics{
			TotalAttempts:       medium.Intervals.Count + 1,
			AverageInterval:     medium.Intervals.Average,
			IntervalStdDev:      medium.Intervals.StdDev,
			IntervalConsistency: intervalConsistency(medium.Intervals),
			AttackDuration:      medium.Duration,
			PeakRatePerMinute:   math.Max(windows["short"].SignalRate, medium.SignalRate),
		}
	}

	return evidence
}

// intervalConsistency converts the coefficient of variation into a 0..1
// regularity score.
func intervalConsistency(s intervalStats) float64 {
	if s.Count < 2 || s.Average == 0 {
		return 0
	}
	return math.Max(0, 1-s.StdDev/s.Average)
}

func computeIntervalStats(timestamps []float64) intervalStats {
	if len(timestamps) < 2 {
		return intervalStats{}
	}

	intervals := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals[i-1] = timestamps[i] - timestamps[i-1]
	}

	min, max := minMax(intervals)
	return intervalStats{
		Count:   len(intervals),
		Average: stat.Mean(intervals, nil),
		Minimum: min,
		Maximum: max,
		StdDev:  popStdDev(intervals),
	}
}
