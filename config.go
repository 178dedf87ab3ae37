package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	SDR        SDRConfig        `yaml:"sdr"`
	Server     ServerConfig     `yaml:"server"`
	History    HistoryConfig    `yaml:"history"`
	Replay     ReplayConfig     `yaml:"replay"`
	Jamming    JammingConfig    `yaml:"jamming"`
	BruteForce BruteForceConfig `yaml:"bruteforce"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
	Mock       MockConfig       `yaml:"mock"`
}

// SDRConfig contains rtl_tcp connection and tuning settings
type SDRConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Frequency  uint64 `yaml:"frequency"`   // Center frequency in Hz
	SampleRate uint32 `yaml:"sample_rate"` // Samples per second
	Gain       string `yaml:"gain"`        // Gain in dB, or "auto"
}

// GainTenths returns the gain encoded for the rtl_tcp set-gain command
// (tenths of dB, or the auto sentinel).
func (s *SDRConfig) GainTenths() (uint32, error) {
	if strings.EqualFold(strings.TrimSpace(s.Gain), "auto") {
		return gainAutoSentinel, nil
	}
	db, err := strconv.ParseFloat(strings.TrimSpace(s.Gain), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gain %q: %w", s.Gain, err)
	}
	if db < 0 || db > 50 {
		return 0, fmt.Errorf("gain %.1f dB out of range (0-50)", db)
	}
	return uint32(db * 10), nil
}

// ServerConfig contains subscriber server settings
type ServerConfig struct {
	Port               int    `yaml:"port"`
	HeartbeatInterval  int    `yaml:"heartbeat_interval"` // Seconds between server heartbeats
	HeartbeatTimeout   int    `yaml:"heartbeat_timeout"`  // Seconds without a reply before disconnect
	WriteQueueSize     int    `yaml:"write_queue_size"`   // Per-subscriber bounded event queue
	MinFirmwareVersion string `yaml:"min_firmware_version"`
}

// HistoryConfig contains signal history retention settings
type HistoryConfig struct {
	MaxEntries int     `yaml:"max_entries"`
	WindowSecs float64 `yaml:"window_seconds"`
}

// ReplayConfig contains replay detector settings
type ReplayConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxTimeWindow       float64 `yaml:"max_time_window"`  // Seconds
	MinReplayDelay      float64 `yaml:"min_replay_delay"` // Seconds
}

// JammingConfig contains jamming detector settings
type JammingConfig struct {
	NoiseThreshold        float64 `yaml:"noise_threshold"`        // dB of noise floor elevation
	InterferenceThreshold float64 `yaml:"interference_threshold"` // Overall confidence verdict threshold
}

// BruteForceConfig contains the rate-threshold table and time windows.
// The escalation table is deliberately configuration rather than code.
type BruteForceConfig struct {
	SuspiciousRate     float64 `yaml:"suspicious_rate"` // Signals per minute
	ModerateRate       float64 `yaml:"moderate_rate"`
	HighRate           float64 `yaml:"high_rate"`
	CriticalRate       float64 `yaml:"critical_rate"`
	ShortWindow        float64 `yaml:"short_window"`         // Seconds
	MediumWindow       float64 `yaml:"medium_window"`        // Seconds
	LongWindow         float64 `yaml:"long_window"`          // Seconds
	RapidBurstInterval float64 `yaml:"rapid_burst_interval"` // Seconds between signals for rapid burst
	SustainedDuration  float64 `yaml:"sustained_duration"`   // Seconds for sustained attack classification
}

// PrometheusConfig contains metrics exposure settings
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	File  string `yaml:"file"`  // Empty = stderr
	Debug bool   `yaml:"debug"` // Same effect as -debug
}

// MockConfig controls the synthetic frame source used when no SDR is present
type MockConfig struct {
	Enabled    bool    `yaml:"enabled"`
	EventRate  float64 `yaml:"event_rate"`  // Synthetic key fob / TPMS events per second
	ReplayRate float64 `yaml:"replay_rate"` // Fraction of events replayed verbatim
}

// Automotive ISM bands the monitor knows how to interpret. Tuning outside
// these is a configuration error, not something to silently monitor.
var automotiveBands = []struct {
	Label string
	Low   uint64
	High  uint64
}{
	{"315 MHz (North America / Japan key fob, TPMS)", 300e6, 350e6},
	{"433.92 MHz (Europe key fob, TPMS)", 400e6, 470e6},
}

// DefaultConfig returns the built-in configuration defaults
func DefaultConfig() *Config {
	return &Config{
		SDR: SDRConfig{
			Host:       "localhost",
			Port:       1234,
			Frequency:  433920000,
			SampleRate: 2048000,
			Gain:       "auto",
		},
		Server: ServerConfig{
			Port:               8888,
			HeartbeatInterval:  30,
			HeartbeatTimeout:   60,
			WriteQueueSize:     256,
			MinFirmwareVersion: "1.0.0",
		},
		History: HistoryConfig{
			MaxEntries: 1000,
			WindowSecs: 300,
		},
		Replay: ReplayConfig{
			SimilarityThreshold: 0.95,
			MaxTimeWindow:       300,
			MinReplayDelay:      1,
		},
		Jamming: JammingConfig{
			NoiseThreshold:        10,
			InterferenceThreshold: 0.8,
		},
		BruteForce: BruteForceConfig{
			SuspiciousRate:     5,
			ModerateRate:       10,
			HighRate:           20,
			CriticalRate:       40,
			ShortWindow:        30,
			MediumWindow:       60,
			LongWindow:         300,
			RapidBurstInterval: 2,
			SustainedDuration:  120,
		},
		Prometheus: PrometheusConfig{
			Enabled: false,
			Listen:  "localhost:9090",
		},
		Mock: MockConfig{
			Enabled:    false,
			EventRate:  0.5,
			ReplayRate: 0.1,
		},
	}
}

// LoadConfig reads the YAML configuration file, merging it over defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for errors that must stop startup
func (c *Config) Validate() error {
	if c.Band() == "" {
		return fmt.Errorf("frequency %d Hz is not in a known automotive band", c.SDR.Frequency)
	}

	if _, err := c.SDR.GainTenths(); err != nil {
		return err
	}

	if c.SDR.SampleRate == 0 {
		return fmt.Errorf("sample rate must be non-zero")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid subscriber port %d", c.Server.Port)
	}
	if c.History.MaxEntries <= 0 || c.History.WindowSecs <= 0 {
		return fmt.Errorf("history limits must be positive")
	}
	if c.BruteForce.SuspiciousRate > c.BruteForce.ModerateRate ||
		c.BruteForce.ModerateRate > c.BruteForce.HighRate ||
		c.BruteForce.HighRate > c.BruteForce.CriticalRate {
		return fmt.Errorf("brute force rate thresholds must be non-decreasing")
	}

	return nil
}

// Band returns the label of the automotive band the monitor is tuned to,
// or the empty string if the frequency is outside every known band.
func (c *Config) Band() string {
	for _, b := range automotiveBands {
		if c.SDR.Frequency >= b.Low && c.SDR.Frequency <= b.High {
			return b.Label
		}
	}
	return ""
}
