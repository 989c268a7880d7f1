package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Result is the last observed state of a dependency.
type Result struct {
	Name         string
	Healthy      bool
	Critical     bool
	Latency      time.Duration
	LastCheck    time.Time
	LastError    error
	CheckCount   int
	FailureCount int
}

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Monitor probes registered dependencies on a fixed interval and serves
// the latest results without re-probing on every read. Critical
// dependencies drag overall health down; non-critical ones only show up
// in the report.
type Monitor struct {
	mu       sync.RWMutex
	checks   []check
	results  map[string]*Result
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
}

func NewMonitor(interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		results:  make(map[string]*Result),
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a dependency probe. Must be called before Start.
func (m *Monitor) Register(name string, critical bool, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks = append(m.checks, check{name: name, critical: critical, fn: fn})
	m.logger.Info("Registered health check",
		zap.String("name", name),
		zap.Bool("critical", critical),
	)
}

// Start runs an immediate probe round and then probes on the interval.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.cancel()
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probeAll()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeAll()
		}
	}
}

func (m *Monitor) probeAll() {
	m.mu.RLock()
	checks := make([]check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	for _, c := range checks {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		start := time.Now()
		err := c.fn(ctx)
		latency := time.Since(start)
		cancel()

		m.mu.Lock()
		result, ok := m.results[c.name]
		if !ok {
			result = &Result{Name: c.name, Critical: c.critical}
			m.results[c.name] = result
		}
		result.Healthy = err == nil
		result.Latency = latency
		result.LastCheck = start
		result.LastError = err
		result.CheckCount++
		if err != nil {
			result.FailureCount++
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("Health check failed",
				zap.String("name", c.name),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
		}
	}
}

// Healthy reports whether every critical dependency passed its last
// probe. Dependencies that have never been probed count as healthy.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, result := range m.results {
		if result.Critical && !result.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns the latest results ordered by name.
func (m *Monitor) Snapshot() []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Result, 0, len(m.results))
	for _, result := range m.results {
		out = append(out, *result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
