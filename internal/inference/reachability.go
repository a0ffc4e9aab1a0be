package inference

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reachability reports whether the network is usable right now.
type Reachability interface {
	Connected() bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func() bool

func (f ReachabilityFunc) Connected() bool { return f() }

// AlwaysConnected never gates calls.
var AlwaysConnected Reachability = ReachabilityFunc(func() bool { return true })

// ProbeMonitor tracks connectivity by dialing a TCP address on an interval.
// Connected is a lock-free read of the last probe result.
type ProbeMonitor struct {
	addr      string
	interval  time.Duration
	timeout   time.Duration
	connected atomic.Bool
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	logger    *zap.Logger
}

// NewProbeMonitor returns a monitor that starts out connected.
func NewProbeMonitor(addr string, interval time.Duration, logger *zap.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := &net.Dialer{}
	m := &ProbeMonitor{
		addr:     addr,
		interval: interval,
		timeout:  min(interval, 3*time.Second),
		dial:     dialer.DialContext,
		logger:   logger,
	}
	m.connected.Store(true)
	return m
}

func (m *ProbeMonitor) Connected() bool {
	return m.connected.Load()
}

// Set overrides the connectivity state until the next probe.
func (m *ProbeMonitor) Set(connected bool) {
	if previous := m.connected.Swap(connected); previous != connected {
		m.logger.Info("network reachability changed", zap.Bool("connected", connected))
	}
}

// Probe dials once and records the result.
func (m *ProbeMonitor) Probe(ctx context.Context) bool {
	if m.addr == "" {
		m.Set(true)
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	conn, err := m.dial(ctx, "tcp", m.addr)
	if err != nil {
		m.logger.Debug("reachability probe failed", zap.String("addr", m.addr), zap.Error(err))
		m.Set(false)
		return false
	}
	_ = conn.Close()
	m.Set(true)
	return true
}

// Run probes until ctx ends.
func (m *ProbeMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
