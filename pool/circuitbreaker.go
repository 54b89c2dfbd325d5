package pool

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker guards the pool's dial path: once threshold consecutive
// dial failures happen in a row, it fast-fails GetConnection for
// cooldown instead of letting every acquisition pay the backend's full
// connect timeout while it is known to be down.
type circuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	halfOpenUsed bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, state: breakerClosed}
}

// allow reports whether a dial attempt should proceed. It transitions
// an open breaker to half-open once cooldown has elapsed, permitting a
// single probe attempt.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = breakerHalfOpen
			b.halfOpenUsed = true // this call is the single probe
		} else {
			return false
		}
	case breakerHalfOpen:
		if b.halfOpenUsed {
			return false
		}
		b.halfOpenUsed = true
	}
	return true
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.halfOpenUsed = false
		return
	}
	if b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.halfOpenUsed = false
}
