package main

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// How long the SDR stream may stay silent after its first successful
// read before the daemon is declared permanently unreachable (exit 2).
const sdrUnreachableLimit = 10 * time.Minute

// Depth of the transport-to-pipeline frame channel. Overflow drops
// whole frames at the transport boundary; the SDR is never throttled
// by downstream processing.
const frameChannelDepth = 8

// ErrSDRUnreachable is the fatal condition behind exit code 2
var ErrSDRUnreachable = fmt.Errorf("SDR unreachable for more than %s after first success", sdrUnreachableLimit)

// SecurityMonitor owns every pipeline component and runs their
// lifecycles: transport reader, sequential pipeline driver, subscriber
// server, and the health/watchdog bookkeeping around them.
type SecurityMonitor struct {
	config *Config

	source     ChunkSource
	sdr        *SDRClient // nil in mock mode
	extractor  *FeatureExtractor
	classifier *PatternClassifier
	history    *SignalHistory
	jamming    *JammingDetector
	arbiter    *ThreatArbiter
	server     *SubscriberServer
	metrics    *Metrics

	frames   chan []byte
	stopChan chan struct{}
	fatalCh  chan error
	wg       sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.Mutex

	framesProcessed atomic.Uint64
	framesDropped   atomic.Uint64
	eventsGenerated atomic.Uint64
}

// NewSecurityMonitor composes the pipeline from configuration,
// initializing components leaf-first.
func NewSecurityMonitor(config *Config) (*SecurityMonitor, error) {
	m := &SecurityMonitor{
		config:   config,
		metrics:  NewMetrics(),
		frames:   make(chan []byte, frameChannelDepth),
		stopChan: make(chan struct{}),
		fatalCh:  make(chan error, 1),
	}

	if config.Mock.Enabled {
		m.source = NewMockSDR(config)
		log.Printf("Mock mode: using synthetic frame source instead of SDR hardware")
	} else {
		sdr, err := NewSDRClient(config.SDR, m.metrics)
		if err != nil {
			return nil, err
		}
		m.sdr = sdr
		m.source = sdr
	}

	m.extractor = NewFeatureExtractor(float64(config.SDR.SampleRate))
	m.classifier = NewPatternClassifier()

	m.history = NewSignalHistory(config.History.MaxEntries, config.History.WindowSecs)
	m.history.SetFatalHandler(m.reportFatal)

	replay := NewReplayDetector(m.history, config.Replay)
	m.jamming = NewJammingDetector(config.Jamming, float64(config.SDR.SampleRate))
	bruteForce := NewBruteForceDetector(m.history, config.BruteForce)
	m.arbiter = NewThreatArbiter(m.history, replay, m.jamming, bruteForce,
		config.SDR.Frequency, config.SDR.SampleRate)

	m.server = NewSubscriberServer(config.Server, config.SDR.Frequency, config.SDR.SampleRate, m.metrics)

	return m, nil
}

// Start brings the monitor up: subscriber server first so no event is
// ever generated without a broadcast path, then the frame pipeline.
func (m *SecurityMonitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.mu.Unlock()

	if err := m.server.Start(); err != nil {
		return err
	}
	ServeMetrics(m.config.Prometheus, m.metrics)

	m.wg.Add(2)
	go m.transportLoop()
	go m.pipelineLoop()

	if m.sdr != nil {
		m.wg.Add(1)
		go m.watchdogLoop()
	}

	log.Printf("Security monitor started: %s, band %s, sample rate %d",
		m.source.Name(), m.config.Band(), m.config.SDR.SampleRate)
	return nil
}

// Fatal returns the channel delivering unrecoverable errors (invariant
// violations, permanent SDR loss).
func (m *SecurityMonitor) Fatal() <-chan error {
	return m.fatalCh
}

func (m *SecurityMonitor) reportFatal(err error) {
	select {
	case m.fatalCh <- err:
	default:
	}
}

// transportLoop pulls raw chunks from the source and hands them to the
// pipeline, dropping whole frames when the pipeline is behind.
func (m *SecurityMonitor) transportLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopChan:
			return
		default:
		}

		chunk, err := m.source.ReadChunk()
		if err != nil {
			select {
			case <-m.stopChan:
			default:
				log.Printf("WARNING: frame source closed: %v", err)
			}
			return
		}

		select {
		case m.frames <- chunk:
		default:
			// Pipeline is saturated: discard at the boundary
			m.framesDropped.Add(1)
			m.metrics.framesDropped.Inc()
		}
	}
}

// pipelineLoop is the sequential per-frame driver: decode, extract,
// classify, arbitrate, broadcast. One goroutine, so the history state
// observed for frame N always includes every write from earlier frames.
func (m *SecurityMonitor) pipelineLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopChan:
			// Drain whatever the transport already queued
			for {
				select {
				case chunk := <-m.frames:
					m.processChunk(chunk)
				default:
					return
				}
			}
		case chunk := <-m.frames:
			m.processChunk(chunk)
		}
	}
}

// processChunk runs one raw chunk through C2..C10
func (m *SecurityMonitor) processChunk(chunk []byte) {
	start := time.Now()

	samples := convertIQSamples(chunk)
	if len(samples) == 0 {
		return
	}
	frame := IQFrame{
		Samples:    samples,
		Frequency:  m.config.SDR.Frequency,
		SampleRate: m.config.SDR.SampleRate,
		Timestamp:  start,
	}

	features := m.extractor.Extract(frame.Samples, float64(frame.Timestamp.UnixNano())/1e9)
	features.Frequency = float64(frame.Frequency)

	detections := m.classifier.Classify(&features)

	if len(detections) == 0 {
		if event := m.arbiter.AnalyzeFrame(&features); event != nil {
			m.emit(event)
		}
	}
	for i := range detections {
		m.metrics.detectionsByType.WithLabelValues(detections[i].Type).Inc()
		if event := m.arbiter.Analyze(&detections[i]); event != nil {
			m.emit(event)
		}
	}

	// Record the frame for temporal jamming analysis after the checks,
	// so a frame never forms part of its own baseline
	m.jamming.Observe(&features)

	m.framesProcessed.Add(1)
	m.metrics.framesProcessed.Inc()
	m.metrics.processingTime.Observe(time.Since(start).Seconds())
	m.metrics.historySize.Set(float64(m.history.Len()))
}

func (m *SecurityMonitor) emit(event *DetectionEvent) {
	m.eventsGenerated.Add(1)
	m.metrics.eventsByKind.WithLabelValues(event.Kind).Inc()
	m.server.Broadcast(event)
}

// watchdogLoop enforces the permanently-unreachable rule: once the SDR
// delivered data, more than ten minutes of silence is fatal.
func (m *SecurityMonitor) watchdogLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if m.sdr.Staleness() > sdrUnreachableLimit {
				log.Printf("ERROR: %v", ErrSDRUnreachable)
				m.reportFatal(ErrSDRUnreachable)
				return
			}
		}
	}
}

// Health returns the orchestrator's health snapshot
func (m *SecurityMonitor) Health() HealthSnapshot {
	m.mu.Lock()
	running := m.running
	start := m.startTime
	m.mu.Unlock()

	reconnects := 0
	sourceStatus := "running"
	if m.sdr != nil {
		reconnects = m.sdr.Reconnects()
		if m.sdr.Staleness() > time.Minute {
			sourceStatus = "degraded"
		}
	}
	if !running {
		sourceStatus = "stopped"
	}

	cpu, rss := processStats()

	snapshot := HealthSnapshot{
		Ready:           running,
		Degraded:        sourceStatus == "degraded",
		MockMode:        m.config.Mock.Enabled,
		UptimeSeconds:   uptime(start),
		FramesProcessed: m.framesProcessed.Load(),
		FramesDropped:   m.framesDropped.Load(),
		EventsGenerated: m.eventsGenerated.Load(),
		Subscribers:     m.server.ActiveSubscribers(),
		SDRReconnects:   reconnects,
		History:         m.history.Stats(),
		ProcessCPU:      cpu,
		ProcessRSSBytes: rss,
		Components: []ComponentHealth{
			{Name: "transport", Status: sourceStatus, Detail: m.source.Name()},
			{Name: "pipeline", Status: boolStatus(running)},
			{Name: "subscriber_server", Status: boolStatus(running)},
		},
	}
	return snapshot
}

func boolStatus(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

// Stop shuts the monitor down: transport first, then the pipeline
// drains in-flight frames, then the subscriber server flushes and
// closes.
func (m *SecurityMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	log.Println("Security monitor stopping")
	m.source.Close()
	close(m.stopChan)
	m.wg.Wait()
	m.server.Stop()
	log.Println("Security monitor stopped")
}
