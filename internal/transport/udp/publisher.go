// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"audiograph/internal/graph"
	"audiograph/internal/render"
)

// packetMagic marks an analyser meter packet: "AGFM" little-endian.
const packetMagic uint32 = 0x4d464741

// Publisher periodically reads an analyser node's frequency bins from
// the executor, packs them into a binary packet, and sends them over
// UDP. It runs in a goroutine managed by Start and Stop.
type Publisher struct {
	sender   *Sender
	executor *render.Executor
	analyser graph.NodeID
	interval time.Duration
	log      logrus.FieldLogger

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32

	// Pre-allocated buffers to keep the publish path allocation free.
	binBuffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a publisher for one analyser node. The bin
// count fixes the packet size; intervals at or below zero default to
// 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, ex *render.Executor, analyser graph.NodeID, bins int, log logrus.FieldLogger) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if ex == nil {
		return nil, fmt.Errorf("udp publisher: executor cannot be nil")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.WithField("interval", interval).Warn("udp publisher: invalid interval, using default")
	}

	return &Publisher{
		sender:       sender,
		executor:     ex,
		analyser:     analyser,
		interval:     interval,
		log:          log,
		binBuffer:    make([]float32, bins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publish loop. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warn("udp publisher: already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.doneChan)
	})
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher) publish() {
	n, ok := p.executor.AnalyserFrequencyData(p.analyser, p.binBuffer)
	if !ok {
		return
	}

	p.packetBuffer.Reset()
	binary.Write(p.packetBuffer, binary.LittleEndian, packetMagic)
	binary.Write(p.packetBuffer, binary.LittleEndian, p.sequenceNum)
	binary.Write(p.packetBuffer, binary.LittleEndian, uint32(n))
	binary.Write(p.packetBuffer, binary.LittleEndian, p.binBuffer[:n])
	p.sequenceNum++

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		p.log.WithError(err).Debug("udp publisher: send failed")
	}
}
