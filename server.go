package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/rs/xid"
)

// Subscriber connection lifecycle states
type connStatus int

const (
	statusConnecting connStatus = iota
	statusConnected
	statusHeartbeatTimeout
	statusError
	statusClosed
)

func (s connStatus) String() string {
	switch s {
	case statusConnecting:
		return "connecting"
	case statusConnected:
		return "connected"
	case statusHeartbeatTimeout:
		return "heartbeat_timeout"
	case statusError:
		return "error"
	default:
		return "closed"
	}
}

// SubscriberConn is one connected edge device. The writer goroutine is
// the single consumer of the bounded queue and owns connection teardown;
// enqueuing is always non-blocking so a stuck peer can never stall the
// pipeline.
type SubscriberConn struct {
	id   string
	conn net.Conn
	peer string

	queue   chan []byte   // Bounded; overflow drops the subscriber
	closing chan struct{} // Closed once to start teardown
	done    chan struct{} // Closed when the writer has finished

	mu              sync.Mutex
	status          connStatus
	connectedAt     time.Time
	lastHeartbeatRx time.Time
	lastHeartbeatTx time.Time
	closeOnce       sync.Once
}

func (sc *SubscriberConn) setStatus(s connStatus) {
	sc.mu.Lock()
	sc.status = s
	sc.mu.Unlock()
}

func (sc *SubscriberConn) getStatus() connStatus {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.status
}

// beginClose starts teardown exactly once. The writer notices, flushes
// what it can, closes the socket and removes the connection.
func (sc *SubscriberConn) beginClose(status connStatus) {
	sc.closeOnce.Do(func() {
		sc.setStatus(status)
		close(sc.closing)
	})
}

// SubscriberServer accepts edge-device connections and broadcasts
// detection events to them over newline-delimited JSON, with heartbeat
// liveness tracking and per-connection backpressure.
type SubscriberServer struct {
	cfg        ServerConfig
	frequency  uint64
	sampleRate uint32
	metrics    *Metrics

	minFirmware *goversion.Version

	listener net.Listener
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[string]*SubscriberConn
	running bool

	// Pending NFC correlation from an edge device; annotates the next
	// event broadcast within +-2 s
	nfcMu    sync.Mutex
	nfcTime  float64
	nfcTagID string
}

// NewSubscriberServer creates the fan-out server
func NewSubscriberServer(cfg ServerConfig, frequency uint64, sampleRate uint32, metrics *Metrics) *SubscriberServer {
	var minFW *goversion.Version
	if cfg.MinFirmwareVersion != "" {
		v, err := goversion.NewVersion(cfg.MinFirmwareVersion)
		if err != nil {
			log.Printf("WARNING: invalid min_firmware_version %q: %v", cfg.MinFirmwareVersion, err)
		} else {
			minFW = v
		}
	}
	return &SubscriberServer{
		cfg:         cfg,
		frequency:   frequency,
		sampleRate:  sampleRate,
		metrics:     metrics,
		minFirmware: minFW,
		stopChan:    make(chan struct{}),
		conns:       make(map[string]*SubscriberConn),
	}
}

// Start begins listening for subscriber connections
func (ss *SubscriberServer) Start() error {
	ss.mu.Lock()
	if ss.running {
		ss.mu.Unlock()
		return fmt.Errorf("subscriber server already running")
	}
	ss.running = true
	ss.mu.Unlock()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", ss.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", ss.cfg.Port, err)
	}
	ss.listener = listener

	ss.wg.Add(2)
	go ss.acceptLoop()
	go ss.heartbeatLoop()

	log.Printf("Subscriber server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listener address (useful when port 0 was
// requested).
func (ss *SubscriberServer) Addr() net.Addr {
	if ss.listener == nil {
		return nil
	}
	return ss.listener.Addr()
}

func (ss *SubscriberServer) acceptLoop() {
	defer ss.wg.Done()

	for {
		conn, err := ss.listener.Accept()
		if err != nil {
			select {
			case <-ss.stopChan:
				return
			default:
			}
			log.Printf("WARNING: accept failed: %v", err)
			continue
		}

		sc := &SubscriberConn{
			id:              xid.New().String(),
			conn:            conn,
			peer:            conn.RemoteAddr().String(),
			queue:           make(chan []byte, ss.cfg.WriteQueueSize),
			closing:         make(chan struct{}),
			done:            make(chan struct{}),
			status:          statusConnecting,
			connectedAt:     time.Now(),
			lastHeartbeatRx: time.Now(),
		}

		ss.mu.Lock()
		ss.conns[sc.id] = sc
		count := len(ss.conns)
		ss.mu.Unlock()
		if ss.metrics != nil {
			ss.metrics.activeSubscribers.Set(float64(count))
		}

		log.Printf("Subscriber %s connected from %s (%d active)", sc.id, sc.peer, count)

		ss.wg.Add(2)
		go ss.writeLoop(sc)
		go ss.readLoop(sc)

		ss.sendConfig(sc)
		sc.setStatus(statusConnected)
	}
}

// sendConfig delivers the one-time configuration frame a subscriber
// receives on acceptance.
func (ss *SubscriberServer) sendConfig(sc *SubscriberConn) {
	config := map[string]interface{}{
		"type":          "config",
		"rtl_frequency": ss.frequency,
		"sample_rate":   ss.sampleRate,
		"version":       Version,
		"capabilities":  []string{"rf_monitoring", "threat_detection", "nfc_correlation"},
	}
	ss.enqueueJSON(sc, config)
}

// writeLoop is the single consumer of the connection's write queue and
// the owner of teardown: whatever path starts the close, this goroutine
// flushes, closes the socket, and unregisters the connection.
func (ss *SubscriberServer) writeLoop(sc *SubscriberConn) {
	defer ss.wg.Done()
	defer close(sc.done)
	defer ss.unregister(sc)
	defer sc.conn.Close()

	write := func(msg []byte) bool {
		sc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := sc.conn.Write(msg); err != nil {
			if sc.getStatus() == statusConnected {
				log.Printf("WARNING: write to subscriber %s failed: %v", sc.id, err)
			}
			sc.beginClose(statusError)
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-sc.queue:
			if !write(msg) {
				return
			}
		case <-sc.closing:
			// Best-effort final flush of whatever is already queued
			for {
				select {
				case msg := <-sc.queue:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop parses newline-delimited JSON from the subscriber. Partial
// trailing bytes stay buffered in the reader; a read deadline expiring
// acts as a heartbeat trigger rather than an error.
func (ss *SubscriberServer) readLoop(sc *SubscriberConn) {
	defer ss.wg.Done()

	reader := bufio.NewReader(sc.conn)
	timeout := time.Duration(ss.cfg.HeartbeatTimeout) * time.Second

	for {
		sc.conn.SetReadDeadline(time.Now().Add(time.Duration(ss.cfg.HeartbeatInterval) * time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No traffic for a full heartbeat interval: probe, and
				// give up once the reply deadline has passed
				sc.mu.Lock()
				silent := time.Since(sc.lastHeartbeatRx)
				sc.mu.Unlock()
				if silent > timeout {
					log.Printf("Subscriber %s heartbeat timeout (%.0fs silent)", sc.id, silent.Seconds())
					sc.beginClose(statusHeartbeatTimeout)
					return
				}
				ss.sendHeartbeat(sc)
				continue
			}
			if sc.getStatus() == statusConnected {
				log.Printf("Subscriber %s read error: %v", sc.id, err)
			}
			sc.beginClose(statusClosed)
			return
		}

		ss.handleMessage(sc, line)
	}
}

// handleMessage dispatches one inbound JSON line by its type field
func (ss *SubscriberServer) handleMessage(sc *SubscriberConn, line []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(line, &msg); err != nil {
		log.Printf("WARNING: invalid JSON from subscriber %s: %v", sc.id, err)
		return
	}

	if ss.metrics != nil {
		ss.metrics.subscriberMessages.Inc()
	}

	msgType, _ := msg["type"].(string)
	switch msgType {
	case "heartbeat":
		sc.mu.Lock()
		sc.lastHeartbeatRx = time.Now()
		sc.mu.Unlock()
		ss.sendHeartbeat(sc)
	case "status":
		log.Printf("Subscriber %s status: %v", sc.id, msg)
		ss.checkFirmwareVersion(sc, msg)
	case "nfc_detection":
		tagID, _ := msg["tag_id"].(string)
		ss.nfcMu.Lock()
		ss.nfcTime = unixNow()
		ss.nfcTagID = tagID
		ss.nfcMu.Unlock()
		log.Printf("Subscriber %s reported NFC detection (tag %q)", sc.id, tagID)
	case "error":
		log.Printf("WARNING: subscriber %s reported error: %v", sc.id, msg)
	default:
		log.Printf("Subscriber %s sent unknown message type %q, ignoring", sc.id, msgType)
	}
}

// checkFirmwareVersion warns when an edge device reports firmware older
// than the configured minimum.
func (ss *SubscriberServer) checkFirmwareVersion(sc *SubscriberConn, msg map[string]interface{}) {
	if ss.minFirmware == nil {
		return
	}
	reported, _ := msg["version"].(string)
	if reported == "" {
		return
	}
	v, err := goversion.NewVersion(reported)
	if err != nil {
		log.Printf("WARNING: subscriber %s reported unparseable firmware version %q", sc.id, reported)
		return
	}
	if v.LessThan(ss.minFirmware) {
		log.Printf("WARNING: subscriber %s firmware %s is older than minimum supported %s",
			sc.id, v, ss.minFirmware)
	}
}

// heartbeatLoop periodically probes every connection and reaps the ones
// whose replies stopped.
func (ss *SubscriberServer) heartbeatLoop() {
	defer ss.wg.Done()

	interval := time.Duration(ss.cfg.HeartbeatInterval) * time.Second
	timeout := time.Duration(ss.cfg.HeartbeatTimeout) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.stopChan:
			return
		case <-ticker.C:
			for _, sc := range ss.snapshotConns() {
				if sc.getStatus() != statusConnected {
					continue
				}
				sc.mu.Lock()
				silent := time.Since(sc.lastHeartbeatRx)
				sc.mu.Unlock()
				if silent > timeout {
					log.Printf("Subscriber %s heartbeat timeout (%.0fs silent)", sc.id, silent.Seconds())
					sc.beginClose(statusHeartbeatTimeout)
					continue
				}
				ss.sendHeartbeat(sc)
			}
		}
	}
}

func (ss *SubscriberServer) sendHeartbeat(sc *SubscriberConn) {
	sc.mu.Lock()
	sc.lastHeartbeatTx = time.Now()
	sc.mu.Unlock()
	ss.enqueueJSON(sc, map[string]string{"type": "heartbeat"})
}

// Broadcast sends one detection event to every connected subscriber.
// A pending NFC detection within +-2 s annotates the event. A full
// write queue means the subscriber cannot keep up; it is dropped rather
// than allowed to stall the pipeline.
func (ss *SubscriberServer) Broadcast(event *DetectionEvent) {
	event.Type = "signal_detection"

	ss.nfcMu.Lock()
	if ss.nfcTime != 0 && math.Abs(unixNow()-ss.nfcTime) <= 2 {
		event.NFCCorrelated = true
		event.NFCTagID = ss.nfcTagID
		ss.nfcTime = 0
		ss.nfcTagID = ""
	}
	ss.nfcMu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: failed to encode detection event %s: %v", event.ID, err)
		return
	}
	data = append(data, '\n')

	if ss.metrics != nil {
		ss.metrics.eventsBroadcast.Inc()
	}

	for _, sc := range ss.snapshotConns() {
		if sc.getStatus() != statusConnected {
			continue
		}
		ss.enqueue(sc, data)
	}
}

// enqueue queues pre-encoded bytes without ever blocking; overflow
// drops the subscriber.
func (ss *SubscriberServer) enqueue(sc *SubscriberConn, data []byte) {
	select {
	case sc.queue <- data:
	default:
		log.Printf("WARNING: subscriber %s write queue full, dropping subscriber", sc.id)
		if ss.metrics != nil {
			ss.metrics.queueDrops.Inc()
		}
		sc.beginClose(statusError)
	}
}

func (ss *SubscriberServer) enqueueJSON(sc *SubscriberConn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: failed to encode message for subscriber %s: %v", sc.id, err)
		return
	}
	ss.enqueue(sc, append(data, '\n'))
}

// snapshotConns copies the connection table so iteration never holds the
// server lock.
func (ss *SubscriberServer) snapshotConns() []*SubscriberConn {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make([]*SubscriberConn, 0, len(ss.conns))
	for _, sc := range ss.conns {
		out = append(out, sc)
	}
	return out
}

// unregister removes a connection from the table
func (ss *SubscriberServer) unregister(sc *SubscriberConn) {
	ss.mu.Lock()
	if _, ok := ss.conns[sc.id]; !ok {
		ss.mu.Unlock()
		return
	}
	delete(ss.conns, sc.id)
	count := len(ss.conns)
	ss.mu.Unlock()

	if ss.metrics != nil {
		ss.metrics.activeSubscribers.Set(float64(count))
	}
	log.Printf("Subscriber %s disconnected (%s, %d active)", sc.id, sc.getStatus(), count)
}

// ActiveSubscribers returns the number of tracked connections
func (ss *SubscriberServer) ActiveSubscribers() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.conns)
}

// Stop closes the listener and gives every connection a best-effort
// final flush capped at five seconds.
func (ss *SubscriberServer) Stop() {
	ss.mu.Lock()
	if !ss.running {
		ss.mu.Unlock()
		return
	}
	ss.running = false
	ss.mu.Unlock()

	close(ss.stopChan)
	if ss.listener != nil {
		ss.listener.Close()
	}

	conns := ss.snapshotConns()
	for _, sc := range conns {
		sc.beginClose(statusClosed)
	}

	allDone := make(chan struct{})
	go func() {
		for _, sc := range conns {
			<-sc.done
		}
		close(allDone)
	}()
	select {
	case <-allDone:
	case <-time.After(5 * time.Second):
		// Flush window expired; cut the sockets out from under the
		// writers so they cannot linger
		for _, sc := range conns {
			sc.conn.Close()
		}
		<-allDone
	}

	ss.wg.Wait()
	log.Println("Subscriber server stopped")
}
