// Package main provides the connectivity prober: periodic pings turned
// into edge-triggered online/offline signals for the sync service.
package main

import (
	"context"
	"sync"
	"time"

	"github.com/hweilin/tillsync/internal/logging"
)

// Pinger probes remote reachability. *remote.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivitySink receives online/offline signals.
type ConnectivitySink interface {
	SetOnline(online bool)
}

// prober turns periodic ping results into connectivity edges. Only
// transitions are forwarded; a steady state produces no signals.
type prober struct {
	pinger   Pinger
	sink     ConnectivitySink
	interval time.Duration

	mu      sync.Mutex
	online  bool
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newProber(pinger Pinger, sink ConnectivitySink, interval time.Duration) *prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &prober{
		pinger:   pinger,
		sink:     sink,
		interval: interval,
		online:   true,
	}
}

// Start launches the probe loop. The first probe runs immediately so a
// daemon booting without network flips offline fast.
func (p *prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop halts the probe loop.
func (p *prober) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stopCh := p.stopCh
	p.mu.Unlock()

	close(stopCh)
	p.wg.Wait()
}

func (p *prober) run(ctx context.Context) {
	defer p.wg.Done()

	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// probe pings once and forwards a signal only on a state change.
func (p *prober) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	online := p.pinger.Ping(probeCtx) == nil

	p.mu.Lock()
	changed := online != p.online
	p.online = online
	p.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity probe state changed", map[string]interface{}{"online": online})
	p.sink.SetOnline(online)
}
