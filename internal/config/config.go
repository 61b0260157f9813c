// SPDX-License-Identifier: MIT
package config

import "time"

// Core policy constants that bound the render engine. These mirror the
// host-visible constants the wire peers also rely on; changing them is a
// protocol-affecting decision.
const (
	// RenderQuantumFrames is the fixed frame count processed per
	// scheduling step on the render thread.
	RenderQuantumFrames = 128

	// Target output latency tiers selectable per context.
	LatencyInteractive = 10 * time.Millisecond
	LatencyBalanced    = 25 * time.Millisecond
	LatencyPlayback    = 50 * time.Millisecond
	LatencyMax         = 250 * time.Millisecond

	// ScriptProcessorWaitTimeout bounds how long the realtime render
	// thread waits for a legacy script-processor round trip.
	ScriptProcessorWaitTimeout = 3 * time.Millisecond

	// Legacy script-processor stream publication retry policy.
	ScriptProcessorPublishRetryInterval = 250 * time.Millisecond
	ScriptProcessorPublishRetryAttempts = 8

	// Worker queued-duration budgets. Media-element-backed sources
	// tolerate deeper queues than interactive graphs.
	WorkerQueuedBudgetDefault      = 20 * time.Millisecond
	WorkerQueuedBudgetMediaElement = 250 * time.Millisecond

	// MaxDelaySeconds caps the ring buffer a delay node may request.
	// Larger requests are rejected when the graph snapshot is built.
	MaxDelaySeconds = 180.0

	// Hardware and processing limits.
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinDeviceID   = -1

	// Defaults for the CLI and the runtime config file.
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultDeviceID   = MinDeviceID

	// Meter publication over UDP.
	MeterBins     = 64
	MeterInterval = 16 * time.Millisecond
)

// Config holds runtime options for the engine, constructed from command
// line flags and/or a YAML config file.
type Config struct {
	// Audio device settings.
	Channels   int     `yaml:"channels"`
	DeviceID   int     `yaml:"device_id"`
	SampleRate float64 `yaml:"sample_rate"`
	LowLatency bool    `yaml:"low_latency"`

	// Offline render options.
	Duration   time.Duration `yaml:"duration"`
	OutputFile string        `yaml:"output_file"`

	// GraphFile is an encoded graph snapshot to load at startup. Empty
	// means the built-in demo graph.
	GraphFile string `yaml:"graph_file"`

	// Transport options.
	ListenAddr string `yaml:"listen_addr"`

	// Meter publication: frequency bins of one analyser node streamed
	// over UDP. Empty target disables it.
	MeterTarget string `yaml:"meter_target"`
	MeterNode   uint64 `yaml:"meter_node"`

	// Debug options.
	Verbose bool   `yaml:"verbose"`
	Command string `yaml:"-"`
}

// NewConfig returns a Config populated with defaults, used as the base
// before flags or a config file are applied.
func NewConfig() *Config {
	return &Config{
		Channels:   DefaultChannels,
		DeviceID:   DefaultDeviceID,
		SampleRate: DefaultSampleRate,
		Duration:   time.Second,
		ListenAddr: ":8089",
	}
}
