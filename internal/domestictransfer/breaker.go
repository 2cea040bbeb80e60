package domestictransfer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"coreledger/internal/broadcast"
)

// BreakerState is one of the three observable circuit-breaker states §4.6
// names.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerTopic is where breaker state transitions are broadcast so
// front-end health widgets can show service state.
const BreakerTopic = "domestic_transfer.breaker"

// BreakerTransition is the payload broadcast on BreakerTopic.
type BreakerTransition struct {
	State BreakerState `json:"state"`
	At    time.Time    `json:"at"`
}

// BreakerConfig tunes the failure threshold and cooldown.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig matches §9's open question (c): "failureThreshold=5,
// cooldown=30s".
var DefaultBreakerConfig = BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}

// Breaker is a three-state circuit breaker gating calls to the domestic
// transfer gateway. Closed allows all traffic; N consecutive failures trip
// it to Open, which rejects fast until the cooldown elapses; the first
// request after cooldown moves to HalfOpen and is alone allowed through —
// its outcome decides Closed or back to Open.
type Breaker struct {
	cfg BreakerConfig
	bus broadcast.PubSub
	log *zap.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	halfOpenBusy bool
}

// NewBreaker builds a Breaker starting Closed.
func NewBreaker(cfg BreakerConfig, bus broadcast.PubSub, log *zap.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig
	}
	return &Breaker{cfg: cfg, bus: bus, log: log, state: BreakerClosed}
}

// ErrBreakerOpen is returned by Allow when the breaker is rejecting fast.
type ErrBreakerOpen struct{}

func (ErrBreakerOpen) Error() string { return "circuit breaker open" }

// Allow reports whether a call may proceed, transitioning Open to HalfOpen
// once the cooldown has elapsed and claiming the single HalfOpen trial slot.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen{}
		}
		b.transition(BreakerHalfOpen)
		b.halfOpenBusy = true
		return nil
	case BreakerHalfOpen:
		if b.halfOpenBusy {
			return ErrBreakerOpen{}
		}
		b.halfOpenBusy = true
		return nil
	}
	return nil
}

// Success reports a completed call that did not fail.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.halfOpenBusy = false
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// Failure reports a completed call that failed.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenBusy = false
	if b.state == BreakerHalfOpen {
		b.transition(BreakerOpen)
		return
	}

	b.failures++
	if b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold {
		b.transition(BreakerOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	if to == BreakerOpen {
		b.openedAt = time.Now()
	}
	if b.log != nil {
		b.log.Info("circuit breaker transition", zap.String("state", string(to)))
	}
	if b.bus != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = b.bus.Publish(ctx, BreakerTopic, BreakerTransition{State: to, At: time.Now()})
		}()
	}
}
