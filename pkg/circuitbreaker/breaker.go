// Package circuitbreaker guards the generation upstream. After a run
// of consecutive failures the breaker opens and callers fail
// immediately, which lets the fallback chain answer fast instead of
// queueing behind timed-out requests. Once the cool-down passes, a
// bounded number of probe calls decide whether the upstream has
// recovered.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrOpen          = errors.New("circuit breaker open")
	ErrProbationFull = errors.New("circuit breaker probation limit reached")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold uint32        // consecutive failures that open the breaker
	SuccessThreshold uint32        // probe successes that close it again
	ProbeLimit       uint32        // calls admitted while half-open
	ResetInterval    time.Duration // closed-state window after which the failure run resets
	CoolDown         time.Duration // open-state hold before probing starts
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.ProbeLimit == 0 {
		c.ProbeLimit = 1
	}
	if c.CoolDown == 0 {
		c.CoolDown = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	admitted   uint32
	successes  uint32
	failures   uint32
	deadline   time.Time
}

func New(name string, cfg Config) *Breaker {
	b := &Breaker{
		name: name,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
	b.nextGeneration(b.now())
	return b
}

// Execute runs fn unless the breaker rejects the call. A panic inside
// fn counts as a failure before propagating.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(generation, false)
			panic(r)
		}
	}()

	err = fn()
	b.record(generation, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.refresh(b.now())

	switch {
	case state == StateOpen:
		return generation, ErrOpen
	case state == StateHalfOpen && b.admitted >= b.cfg.ProbeLimit:
		return generation, ErrProbationFull
	}

	b.admitted++
	return generation, nil
}

// record folds one call outcome into the breaker. Outcomes from a
// previous generation are stale and dropped: the state they belonged
// to has already been rotated away.
func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state, current := b.refresh(now)
	if current != generation {
		return
	}

	if success {
		b.successes++
		b.failures = 0
		if state == StateHalfOpen && b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed, now)
		}
		return
	}

	b.failures++
	b.successes = 0
	switch state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// refresh applies any deadline-driven transition before reading state.
func (b *Breaker) refresh(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			b.nextGeneration(now)
		}
	case StateOpen:
		if b.deadline.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.nextGeneration(now)

	b.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)
}

func (b *Breaker) nextGeneration(now time.Time) {
	b.generation++
	b.admitted = 0
	b.successes = 0
	b.failures = 0

	switch b.state {
	case StateOpen:
		b.deadline = now.Add(b.cfg.CoolDown)
	case StateClosed:
		if b.cfg.ResetInterval > 0 {
			b.deadline = now.Add(b.cfg.ResetInterval)
		} else {
			b.deadline = time.Time{}
		}
	default:
		b.deadline = time.Time{}
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.refresh(b.now())
	return state
}
