package circuit

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of the breaker
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast
	StateHalfOpen              // a limited probe is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes when the breaker trips and recovers.
type Config struct {
	Threshold int           // consecutive failures before opening
	Cooldown  time.Duration // time to wait before probing again
	Probes    int           // successful probes needed to close
}

func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Probes:    2,
	}
}

// Breaker guards calls to an external dependency. After Threshold
// consecutive failures it opens and fails fast for Cooldown; then it
// lets probes through one at a time until Probes successes close it.
type Breaker struct {
	mu          sync.Mutex
	name        string
	config      Config
	state       State
	failures    int
	successes   int
	probing     bool
	lastFailure time.Time
	logger      *zap.Logger
}

func NewBreaker(name string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		logger: logger,
	}
}

// Do runs fn under the breaker. When the breaker is open the call is
// rejected with ErrOpen and fn never runs.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.config.Cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil

	case StateHalfOpen:
		// One probe at a time
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil

	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if err != nil {
		b.failures++
		b.successes = 0
		b.lastFailure = time.Now()

		if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.config.Threshold) {
			b.setState(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.config.Probes {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) setState(next State) {
	if next == b.state {
		return
	}
	prev := b.state
	b.state = next
	if next == StateClosed {
		b.failures = 0
		b.successes = 0
	}

	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
