package main

import (
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockSDR is the synthetic frame source used when no SDR hardware is
// present. It fabricates the same interleaved uint8 I/Q byte stream an
// rtl_tcp daemon would deliver: background noise, key fob burst trains,
// TPMS telemetry, and occasional byte-exact replays of an earlier
// transmission so the replay detector has something to find.
//
// Every other pipeline component runs unchanged against this source;
// mock mode is the only sanctioned way to run without hardware.
type MockSDR struct {
	sampleRate float64
	eventRate  float64
	replayRate float64

	rng       *rand.Rand
	lastEvent []byte // Retained for replays

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// NewMockSDR creates a synthetic source matching the configured tuning
func NewMockSDR(cfg *Config) *MockSDR {
	return &MockSDR{
		sampleRate: float64(cfg.SDR.SampleRate),
		eventRate:  cfg.Mock.EventRate,
		replayRate: cfg.Mock.ReplayRate,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:       make(chan struct{}),
	}
}

// Name identifies the source in health reports
func (m *MockSDR) Name() string {
	return "mock"
}

// ReadChunk produces the next synthetic chunk, pacing itself to roughly
// real time so the temporal detectors see realistic rates.
func (m *MockSDR) ReadChunk() ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, io.EOF
	}
	m.mu.Unlock()

	// Pace chunk delivery at ~10 frames per second
	select {
	case <-m.stop:
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
	}

	roll := m.rng.Float64()
	eventChance := m.eventRate * 0.1 // Per 100 ms tick

	switch {
	case m.lastEvent != nil && roll < eventChance*m.replayRate:
		// Replay the captured transmission byte for byte
		chunk := make([]byte, len(m.lastEvent))
		copy(chunk, m.lastEvent)
		if DebugMode {
			log.Printf("DEBUG: mock SDR replaying previous transmission (%d bytes)", len(chunk))
		}
		return chunk, nil
	case roll < eventChance*0.7:
		chunk := m.keyFobBurst()
		m.lastEvent = chunk
		return chunk, nil
	case roll < eventChance:
		chunk := m.tpmsBurst()
		m.lastEvent = chunk
		return chunk, nil
	default:
		return m.noiseChunk(sdrChunkSize), nil
	}
}

// keyFobBurst synthesizes an FSK burst train with key fob timing:
// 4 bursts of ~2 ms separated by 15 ms, +-30 kHz deviation.
func (m *MockSDR) keyFobBurst() []byte {
	return m.burstTrain(4, 0.015, 0.002, 30e3)
}

// tpmsBurst synthesizes a TPMS transmission: 2 longer bursts with
// +-20 kHz deviation.
func (m *MockSDR) tpmsBurst() []byte {
	return m.burstTrain(2, 0.030, 0.008, 20e3)
}

// burstTrain builds one frame containing count FSK bursts over a low
// noise floor.
func (m *MockSDR) burstTrain(count int, spacing, burstLen, deviation float64) []byte {
	total := int(m.sampleRate * (float64(count)*spacing + 0.010))
	samples := make([]complex128, total)

	// Noise floor
	for i := range samples {
		samples[i] = complex(m.rng.NormFloat64()*0.01, m.rng.NormFloat64()*0.01)
	}

	burstSamples := int(m.sampleRate * burstLen)
	bitSamples := int(m.sampleRate / 4000) // ~4 kbaud
	if bitSamples < 1 {
		bitSamples = 1
	}

	for b := 0; b < count; b++ {
		start := int(float64(b) * spacing * m.sampleRate)
		phase := 0.0
		sign := 1.0
		for i := 0; i < burstSamples && start+i < total; i++ {
			if i%bitSamples == 0 && m.rng.Intn(2) == 0 {
				sign = -sign
			}
			phase += 2 * math.Pi * sign * deviation / m.sampleRate
			samples[start+i] = complex(0.9*math.Cos(phase), 0.9*math.Sin(phase))
		}
	}

	return complexToIQ(samples)
}

// noiseChunk produces plain background noise
func (m *MockSDR) noiseChunk(bytes int) []byte {
	samples := make([]complex128, bytes/2)
	for i := range samples {
		samples[i] = complex(m.rng.NormFloat64()*0.01, m.rng.NormFloat64()*0.01)
	}
	return complexToIQ(samples)
}

// complexToIQ is the inverse of convertIQSamples: normalized complex
// samples back to interleaved uint8 bytes.
func complexToIQ(samples []complex128) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		out[2*i] = quantize(real(s))
		out[2*i+1] = quantize(imag(s))
	}
	return out
}

func quantize(v float64) byte {
	q := v*127.5 + 127.5
	if q < 0 {
		q = 0
	}
	if q > 255 {
		q = 255
	}
	return byte(math.Round(q))
}

// Close stops the synthetic stream
func (m *MockSDR) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	return nil
}
