package main

import (
	"log"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ComponentHealth is one component's status line in the health snapshot
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"` // running / degraded / stopped
	Detail string `json:"detail,omitempty"`
}

// HealthSnapshot is the orchestrator's point-in-time health report
type HealthSnapshot struct {
	Ready           bool              `json:"ready"`
	Degraded        bool              `json:"degraded"`
	MockMode        bool              `json:"mock_mode"`
	UptimeSeconds   float64           `json:"uptime_seconds"`
	FramesProcessed uint64            `json:"frames_processed"`
	FramesDropped   uint64            `json:"frames_dropped"`
	EventsGenerated uint64            `json:"events_generated"`
	Subscribers     int               `json:"active_subscribers"`
	SDRReconnects   int               `json:"sdr_reconnects"`
	History         HistoryStats      `json:"history"`
	Components      []ComponentHealth `json:"components"`
	ProcessCPU      float64           `json:"process_cpu_percent"`
	ProcessRSSBytes uint64            `json:"process_rss_bytes"`
}

// processStats samples this process's CPU and memory via gopsutil.
// Failures degrade to zeros; health reporting must never break the
// monitor.
func processStats() (float64, uint64) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		if DebugMode {
			log.Printf("DEBUG: process stats unavailable: %v", err)
		}
		return 0, 0
	}

	cpu, err := proc.CPUPercent()
	if err != nil {
		cpu = 0
	}
	var rss uint64
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rss = mem.RSS
	}
	return cpu, rss
}

// uptime converts a start time into whole seconds of runtime
func uptime(start time.Time) float64 {
	return time.Since(start).Seconds()
}
