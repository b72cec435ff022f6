package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the wrapped operation while a
// breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Counters accumulate over the breaker's lifetime, independent of the
// rolling window.
type Counters struct {
	Calls    uint64 `json:"calls"`
	Failures uint64 `json:"failures"`
	Rejected uint64 `json:"rejected"`
	Opens    uint64 `json:"opens"`
	Closes   uint64 `json:"closes"`
}

// Observer receives call outcomes and state transitions, typically backed by
// a metrics registry.
type Observer interface {
	BreakerCall(name string, success bool)
	BreakerStateChange(name string, from, to State)
}

type observation struct {
	at time.Time
	ok bool
}

// Breaker is a per-dependency failure-isolation state machine. One instance
// exists per external dependency and is shared by all in-flight requests;
// every method is safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger
	obs  Observer
	now  func() time.Time

	mu               sync.Mutex
	state            State
	window           []observation
	openedAt         time.Time
	halfOpenInFlight int
	halfOpenSuccess  int
	counters         Counters
}

type Option func(*Breaker)

func WithLogger(log *slog.Logger) Option {
	return func(b *Breaker) { b.log = log }
}

func WithObserver(obs Observer) Option {
	return func(b *Breaker) { b.obs = obs }
}

func NewBreaker(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name: name,
		cfg:  cfg.normalize(),
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the breaker. While open it fails fast with
// ErrCircuitOpen; otherwise the outcome of fn is recorded against the
// rolling window and may transition the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.settle(err == nil)
	return err
}

// Call is Execute for operations with a typed result.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			b.counters.Rejected++
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.transition(StateHalfOpen)
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = 1
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			b.counters.Rejected++
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.halfOpenInFlight++
	}
	b.counters.Calls++
	return nil
}

func (b *Breaker) settle(success bool) {
	b.mu.Lock()

	now := b.now()
	b.window = append(b.window, observation{at: now, ok: success})
	b.evictLocked(now)
	if !success {
		b.counters.Failures++
	}

	switch b.state {
	case StateHalfOpen:
		b.halfOpenInFlight--
		if success {
			b.halfOpenSuccess++
			if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
				b.window = b.window[:0]
			}
		} else {
			b.transition(StateOpen)
			b.openedAt = now
		}
	case StateClosed:
		if !success && b.shouldTripLocked() {
			b.transition(StateOpen)
			b.openedAt = now
		}
	}
	b.mu.Unlock()

	if b.obs != nil {
		b.obs.BreakerCall(b.name, success)
	}
}

func (b *Breaker) evictLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	idx := 0
	for idx < len(b.window) && !b.window[idx].at.After(cutoff) {
		idx++
	}
	if idx > 0 {
		b.window = append(b.window[:0], b.window[idx:]...)
	}
}

func (b *Breaker) shouldTripLocked() bool {
	total := len(b.window)
	if total < b.cfg.MinObservations {
		return false
	}
	failures := 0
	for _, o := range b.window {
		if !o.ok {
			failures++
		}
	}
	rate := float64(failures) / float64(total)
	return rate >= b.effectiveRatioLocked(failures)
}

// effectiveRatioLocked lowers the trip threshold while the window already
// holds an elevated failure count.
func (b *Breaker) effectiveRatioLocked(windowFailures int) float64 {
	ratio := b.cfg.FailureRatio
	if !b.cfg.Adaptive || windowFailures <= b.cfg.AdaptiveTrigger {
		return ratio
	}
	ratio -= b.cfg.AdaptiveReduction
	if ratio < b.cfg.MinFailureRatio {
		ratio = b.cfg.MinFailureRatio
	}
	return ratio
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case StateOpen:
		b.counters.Opens++
	case StateClosed:
		b.counters.Closes++
	}
	b.log.Warn("circuit_breaker_state_change",
		"breaker", b.name,
		"from", from.String(),
		"to", to.String(),
	)
	if b.obs != nil {
		b.obs.BreakerStateChange(b.name, from, to)
	}
}

// State reports the current state, promoting OPEN to HALF_OPEN once the open
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset returns the breaker to CLOSED and clears the rolling window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.window = b.window[:0]
	b.halfOpenInFlight = 0
	b.halfOpenSuccess = 0
}

// Snapshot is a point-in-time view of breaker bookkeeping for operational
// endpoints.
type Snapshot struct {
	Name           string   `json:"name"`
	State          string   `json:"state"`
	Counters       Counters `json:"counters"`
	WindowSize     int      `json:"window_size"`
	WindowFailures int      `json:"window_failures"`
	EffectiveRatio float64  `json:"effective_failure_ratio"`
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(b.now())
	failures := 0
	for _, o := range b.window {
		if !o.ok {
			failures++
		}
	}
	return Snapshot{
		Name:           b.name,
		State:          b.state.String(),
		Counters:       b.counters,
		WindowSize:     len(b.window),
		WindowFailures: failures,
		EffectiveRatio: b.effectiveRatioLocked(failures),
	}
}

// Registry holds the process-lifetime breakers, one per dependency.
type Registry struct {
	mu       sync.Mutex
	opts     []Option
	breakers map[string]*Breaker
}

func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker registered under name, creating it with cfg on
// first use.
func (r *Registry) Get(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, cfg, r.opts...)
	r.breakers[name] = b
	return b
}

func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
