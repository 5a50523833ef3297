package connectivity

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/models"
)

const defaultProbeInterval = 30 * time.Second
const probeTimeout = 5 * time.Second

// Prober answers whether the upstream API is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HttpProber sends a HEAD request to the API base URL. Any response counts as
// reachable: the probe measures the network path, not API health.
type HttpProber struct {
	logger models.Logger
	url    string
}

func NewHttpProber(logger models.Logger) *HttpProber {
	return &HttpProber{logger, os.Getenv(claimsync.Env_ApiUrl)}
}

func (p *HttpProber) Probe(ctx context.Context) bool {
	probeCtx, probeCancel := context.WithTimeout(ctx, probeTimeout)
	defer probeCancel()

	req, err := http.NewRequestWithContext(probeCtx, "HEAD", p.url, nil)
	if err != nil {
		p.logger.Errorf("probe: invalid url %s: %v", p.url, err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		p.logger.Debugf("probe: %s unreachable: %v", p.url, err)
		return false
	}
	resp.Body.Close()
	return true
}

// ManualProber is a settable switch for tests and forced offline mode.
type ManualProber struct {
	online atomic.Bool
}

func (p *ManualProber) SetOnline(online bool) {
	p.online.Store(online)
}

func (p *ManualProber) Probe(_ context.Context) bool {
	return p.online.Load()
}

// Monitor polls a prober on a ticker and tracks reachability. It starts out
// offline, so the first successful probe counts as a reconnect and triggers
// the registered callback, which drains any queue left over from a prior run.
type Monitor struct {
	logger        models.Logger
	prober        Prober
	probeInterval time.Duration
	online        atomic.Bool
	onReconnect   func(context.Context)
}

var _ models.ConnectivityMonitor = &Monitor{}

func NewMonitor(logger models.Logger, prober Prober) *Monitor {
	probeInterval := defaultProbeInterval
	if configProbeInterval, found := os.LookupEnv(claimsync.Env_ProbeInterval); found {
		if parsedProbeInterval, err := time.ParseDuration(configProbeInterval); err == nil {
			probeInterval = parsedProbeInterval
		}
	}
	return &Monitor{
		logger:        logger,
		prober:        prober,
		probeInterval: probeInterval,
	}
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnReconnect registers the callback fired on each offline-to-online edge.
// Register before Run or Check; the callback runs on the caller's goroutine.
func (m *Monitor) OnReconnect(callback func(context.Context)) {
	m.onReconnect = callback
}

// Check runs a single probe immediately, outside the ticker cadence. One-shot
// commands use this to establish state without a running monitor.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.prober.Probe(ctx)
	wasOnline := m.online.Swap(online)
	if online && !wasOnline {
		m.logger.Infof("connectivity: online")
		if m.onReconnect != nil {
			m.onReconnect(ctx)
		}
	} else if !online && wasOnline {
		m.logger.Warnf("connectivity: offline")
	}
	return online
}

func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	tick := time.NewTicker(m.probeInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("connectivity: monitor stopped")
			return
		case <-tick.C:
			m.Check(ctx)
		}
	}
}
