package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common/loggers"
)

func TestCheckTracksEdges(t *testing.T) {
	prober := &ManualProber{}
	monitor := NewMonitor(loggers.NewTestLogger(), prober)
	numReconnects := 0
	monitor.OnReconnect(func(context.Context) {
		numReconnects++
	})

	steps := []struct {
		probe              bool
		expectedOnline     bool
		expectedReconnects int
	}{
		{false, false, 0},
		{true, true, 1},
		// Steady state must not refire the callback.
		{true, true, 1},
		{false, false, 1},
		{true, true, 2},
	}
	for idx, step := range steps {
		prober.SetOnline(step.probe)
		if online := monitor.Check(context.Background()); online != step.expectedOnline {
			t.Errorf("step %d: expected online=%v, got %v", idx, step.expectedOnline, online)
		}
		if monitor.Online() != step.expectedOnline {
			t.Errorf("step %d: monitor state did not match probe result", idx)
		}
		if numReconnects != step.expectedReconnects {
			t.Errorf("step %d: incorrect number %d of reconnect callbacks, expected %d", idx, numReconnects, step.expectedReconnects)
		}
	}
}

func TestRunFiresReconnectOnEdge(t *testing.T) {
	t.Setenv(claimsync.Env_ProbeInterval, "10ms")
	prober := &ManualProber{}
	monitor := NewMonitor(loggers.NewTestLogger(), prober)
	numReconnects := 0
	monitor.OnReconnect(func(context.Context) {
		numReconnects++
	})
	// Bring the link up partway through the run so the ticker observes the edge.
	timer := time.AfterFunc(50*time.Millisecond, func() {
		prober.SetOnline(true)
	})
	defer timer.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	monitor.Run(ctx)
	if !monitor.Online() {
		t.Errorf("expected monitor to end online")
	}
	if numReconnects != 1 {
		t.Errorf("incorrect number %d of reconnect callbacks, expected 1", numReconnects)
	}
}

func TestProbeIntervalFromEnv(t *testing.T) {
	t.Setenv(claimsync.Env_ProbeInterval, "250ms")
	monitor := NewMonitor(loggers.NewTestLogger(), &ManualProber{})
	if monitor.probeInterval != 250*time.Millisecond {
		t.Errorf("incorrect probe interval %s, expected 250ms", monitor.probeInterval)
	}

	t.Setenv(claimsync.Env_ProbeInterval, "soon")
	monitor = NewMonitor(loggers.NewTestLogger(), &ManualProber{})
	if monitor.probeInterval != defaultProbeInterval {
		t.Errorf("incorrect probe interval %s, expected default %s", monitor.probeInterval, defaultProbeInterval)
	}
}
