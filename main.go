package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Version is advertised to subscribers in the config frame
const Version = "1.2.0"

// Global debug flag
var DebugMode bool

// Exit codes
const (
	exitOK             = 0
	exitFatal          = 1
	exitSDRUnreachable = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	mock := flag.Bool("mock", false, "Force mock mode (synthetic frame source)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	healthInterval := flag.Duration("health-interval", 5*time.Minute, "Interval between health log lines (0 disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("automotive-rf-monitor %s\n", Version)
		return exitOK
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return exitFatal
	}

	DebugMode = *debug || config.Logging.Debug
	if *mock {
		config.Mock.Enabled = true
	}

	if config.Logging.File != "" {
		f, err := os.OpenFile(config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("ERROR: failed to open log file: %v", err)
			return exitFatal
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if err := config.Validate(); err != nil {
		log.Printf("ERROR: invalid configuration: %v", err)
		return exitFatal
	}

	log.Printf("automotive-rf-monitor %s starting (frequency %d Hz, %s)",
		Version, config.SDR.Frequency, config.Band())

	monitor, err := NewSecurityMonitor(config)
	if err != nil {
		log.Printf("ERROR: failed to initialize monitor: %v", err)
		return exitFatal
	}

	if err := monitor.Start(); err != nil {
		log.Printf("ERROR: failed to start monitor: %v", err)
		return exitFatal
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var healthTick <-chan time.Time
	if *healthInterval > 0 {
		ticker := time.NewTicker(*healthInterval)
		defer ticker.Stop()
		healthTick = ticker.C
	}

	for {
		select {
		case sig := <-sigChan:
			log.Printf("Received %s, shutting down", sig)
			monitor.Stop()
			return exitOK

		case err := <-monitor.Fatal():
			log.Printf("ERROR: fatal: %v", err)
			monitor.Stop()
			if err == ErrSDRUnreachable {
				return exitSDRUnreachable
			}
			return exitFatal

		case <-healthTick:
			logHealth(monitor)
		}
	}
}

func logHealth(monitor *SecurityMonitor) {
	snapshot := monitor.Health()
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("WARNING: failed to encode health snapshot: %v", err)
		return
	}
	log.Printf("Health: %s", data)
}
