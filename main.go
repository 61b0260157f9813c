package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"audiograph/cmd"
	"audiograph/internal/config"
	"audiograph/internal/engine"
	"audiograph/internal/graph"
	"audiograph/internal/offline"
	"audiograph/internal/render"
	"audiograph/internal/transport"
	"audiograph/internal/transport/udp"
	"audiograph/internal/wire"
	"audiograph/internal/worklet"
	"audiograph/pkg/build"
)

// main is the entry point for the audio graph engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments
//   - Load the initial graph snapshot
//
// 2. Concurrent Phase (Hot Path):
//   - Start the render executor, realtime or offline
//   - Accept graph updates over the websocket transport
//   - Reclaim retired update slots on the control goroutine
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop streams and flush output files
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	// One thread dedicated to the render callback, one for control and
	// transport work.
	runtime.GOMAXPROCS(2)

	cfg, err := cmd.ParseArgs()
	if err != nil {
		logrus.Fatal(err)
	}

	log := logrus.New()
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	switch cfg.Command {
	case "list":
		if err := engine.Initialize(); err != nil {
			log.Fatal(err)
		}
		defer engine.Terminate()
		if err := engine.ListDevices(); err != nil {
			log.Fatal(err)
		}
	case "render":
		if err := runRender(cfg, log); err != nil {
			log.Fatal(err)
		}
	case "serve":
		if err := runServe(cfg, log); err != nil {
			log.Fatal(err)
		}
	}
}

// runRender renders the graph offline and writes the result to a WAV
// file. No audio hardware is touched.
func runRender(cfg *config.Config, log *logrus.Logger) error {
	desc, res, sampleRate, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	registry := worklet.NewRegistry()
	host := worklet.NewOfflineHost(registry, nil)

	ex, err := render.New(desc, res, render.Options{
		SampleRate: sampleRate,
		Host:       host,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	frames := int(cfg.Duration.Seconds() * float64(sampleRate))
	renderer, err := offline.NewRenderer(ex, frames, log)
	if err != nil {
		return err
	}
	defer renderer.Close()

	start := time.Now()
	if err := renderer.Start(); err != nil {
		return err
	}
	if err := renderer.Wait(context.Background()); err != nil {
		return err
	}
	result, err := renderer.TakeResult()
	if err != nil {
		return err
	}

	if err := engine.WriteWAV(cfg.OutputFile, result.Buffer); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":    cfg.OutputFile,
		"frames":  result.Frames,
		"elapsed": time.Since(start),
	}).Info("offline render written")
	return nil
}

// runServe renders to the output device and accepts graph snapshots
// over the websocket transport until interrupted.
func runServe(cfg *config.Config, log *logrus.Logger) error {
	desc, res, sampleRate, err := loadGraph(cfg)
	if err != nil {
		return err
	}

	if err := engine.Initialize(); err != nil {
		return err
	}
	defer engine.Terminate()

	registry := worklet.NewRegistry()
	host := worklet.NewRealtimeHost(registry, nil, log)
	defer host.Close()

	ex, err := render.New(desc, res, render.Options{
		SampleRate: sampleRate,
		Host:       host,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(cfg, ex, log)
	if err != nil {
		return err
	}

	server := transport.NewWebSocketServer(cfg.ListenAddr, func(payload []byte) error {
		decoded, err := wire.DecodeGraph(payload)
		if err != nil {
			return err
		}
		kind, err := ex.SubmitUpdate(decoded.Description, decoded.Resources)
		if err != nil {
			return err
		}
		log.WithField("update", kind).Debug("graph snapshot accepted")
		return nil
	}, log)
	defer server.Close()

	if cfg.MeterTarget != "" {
		sender, err := udp.NewSender(cfg.MeterTarget)
		if err != nil {
			return err
		}
		defer sender.Close()
		meter, err := udp.NewPublisher(config.MeterInterval, sender, ex,
			graph.NodeID(cfg.MeterNode), config.MeterBins, log)
		if err != nil {
			return err
		}
		meter.Start()
		defer meter.Stop()
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	if err := eng.StartOutputStream(); err != nil {
		return err
	}

	// Reclaim retired update slots off the render thread.
	reclaim := time.NewTicker(100 * time.Millisecond)
	defer reclaim.Stop()
	go func() {
		for range reclaim.C {
			ex.ReleaseRetired()
		}
	}()

	log.WithFields(logrus.Fields{
		"listen":      cfg.ListenAddr,
		"sample_rate": sampleRate,
		"quantum":     ex.Quantum(),
	}).Info("engine running")

	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	return eng.Close()
}

// loadGraph reads the configured snapshot file, or falls back to the
// built-in demo graph. The returned sample rate prefers the snapshot's
// embedded rate over the configured one.
func loadGraph(cfg *config.Config) (*graph.Description, *graph.ResourceRegistry, float32, error) {
	if cfg.GraphFile == "" {
		desc, res := demoGraph()
		return desc, res, float32(cfg.SampleRate), nil
	}

	payload, err := os.ReadFile(cfg.GraphFile)
	if err != nil {
		return nil, nil, 0, err
	}
	decoded, err := wire.DecodeGraph(payload)
	if err != nil {
		return nil, nil, 0, err
	}
	rate := decoded.SampleRate
	if rate <= 0 {
		rate = float32(cfg.SampleRate)
	}
	return decoded.Description, decoded.Resources, rate, nil
}

// demoGraph is a 440Hz sine through a gain into the destination,
// started at frame zero.
func demoGraph() (*graph.Description, *graph.ResourceRegistry) {
	const (
		oscID  graph.NodeID = 1
		gainID graph.NodeID = 2
		dstID  graph.NodeID = 3
	)

	desc := graph.NewDescription(dstID)
	desc.Nodes[oscID] = graph.OscillatorNode{
		Frequency: 440,
		Shape:     graph.WaveSine,
		Schedule:  graph.FrameSchedule{StartFrame: 0, StopFrame: graph.NoFrame},
	}
	desc.Nodes[gainID] = graph.GainNode{Gain: 0.5}
	desc.Nodes[dstID] = graph.DestinationNode{Layout: graph.ChannelLayout{Count: 2}}
	desc.Connections = []graph.Connection{
		{Source: oscID, Destination: gainID},
		{Source: gainID, Destination: dstID},
	}
	return desc, graph.NewResourceRegistry()
}
