package cache

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrBreakerOpen = errors.New("remote cache breaker is open")

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultBreakerTrials    = 3
)

// BreakerSettings tunes a Breaker. Zero values take the defaults.
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before letting trials through.
	Cooldown time.Duration
	// Trials is the number of successful half-open calls needed to close.
	Trials int
	// OnChange is called with the breaker locked; it must not call back into it.
	OnChange func(from, to BreakerState)
}

// BreakerStats is a snapshot of a Breaker.
type BreakerStats struct {
	State    string    `json:"state"`
	Failures int       `json:"consecutive_failures"`
	Trips    uint64    `json:"trips"`
	Since    time.Time `json:"since"`
}

// Breaker guards calls to the remote cache. After Threshold consecutive
// failures it rejects calls for Cooldown, then admits up to Trials calls at a
// time until that many succeed.
//
// Every transition starts a new epoch. A call reports against the epoch it was
// admitted in, so results that straddle a transition are ignored.
type Breaker struct {
	settings BreakerSettings
	now      func() time.Time

	mu       sync.Mutex
	state    BreakerState
	epoch    uint64
	since    time.Time
	failures int
	inFlight int
	passed   int
	trips    uint64
}

func NewBreaker(settings BreakerSettings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = defaultBreakerThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = defaultBreakerCooldown
	}
	if settings.Trials <= 0 {
		settings.Trials = defaultBreakerTrials
	}

	b := &Breaker{settings: settings, now: time.Now}
	b.since = b.now()
	return b
}

// Do runs fn unless the breaker rejects the call with ErrBreakerOpen.
func (b *Breaker) Do(fn func() error) error {
	epoch, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.report(epoch, err)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.since) < b.settings.Cooldown {
			return 0, ErrBreakerOpen
		}
		b.enter(BreakerHalfOpen)
	}

	if b.state == BreakerHalfOpen {
		if b.inFlight+b.passed >= b.settings.Trials {
			return 0, ErrBreakerOpen
		}
		b.inFlight++
	}

	return b.epoch, nil
}

func (b *Breaker) report(epoch uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		return
	}

	switch b.state {
	case BreakerClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.trip()
		}
	case BreakerHalfOpen:
		b.inFlight--
		if err != nil {
			b.trip()
			return
		}
		b.passed++
		if b.passed >= b.settings.Trials {
			b.enter(BreakerClosed)
		}
	}
}

func (b *Breaker) trip() {
	b.trips++
	b.enter(BreakerOpen)
}

func (b *Breaker) enter(to BreakerState) {
	from := b.state

	b.state = to
	b.epoch++
	b.since = b.now()
	b.failures = 0
	b.inFlight = 0
	b.passed = 0

	if b.settings.OnChange != nil && from != to {
		b.settings.OnChange(from, to)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerStats{
		State:    b.state.String(),
		Failures: b.failures,
		Trips:    b.trips,
		Since:    b.since,
	}
}
