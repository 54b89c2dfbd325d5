// Package pool implements a thread-safe connection pool over real
// database/sql/driver backends, modeled on libzdb's ConnectionPool:
// connections are dialed directly against a driverapi.Backend, never
// through database/sql's own pool, so this package's acquisition and
// reaper algorithms are the only thing managing connection lifetime.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/karolsteve/libzdb/driverapi"
	"github.com/karolsteve/libzdb/dburl"
	"github.com/karolsteve/libzdb/logger"
	"github.com/karolsteve/libzdb/zerr"
)

// Version identifies this package for diagnostics and log lines.
const Version = "1.0.0"

const (
	defaultMaxConnections    = 20
	defaultInitConnections   = 5
	defaultConnectionTimeout = 90 * time.Second
	defaultSweepInterval     = 60 * time.Second
	maxAcquireRetries        = 10
)

// ConnectionPool manages a set of Connections to a single backend,
// identified by a dburl.URL. Acquisition never blocks: if the pool is
// at capacity and every connection is in use, GetConnection fails
// immediately rather than queuing the caller (spec §4.6, Non-goals).
type ConnectionPool struct {
	url     *dburl.URL
	backend driverapi.Backend
	logger  logger.Logger

	mu      sync.Mutex
	conns   []*Connection
	filled  bool
	stopped bool

	initial           int
	max               int
	connectionTimeout time.Duration
	sweepInterval     time.Duration
	reaperEnabled     bool

	slowOpThreshold time.Duration
	breaker         *circuitBreaker
	distBreaker     *distributedBreakerState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// Option configures a ConnectionPool at construction time.
type Option func(*ConnectionPool)

// WithInitial sets how many connections are opened when the pool starts.
func WithInitial(n int) Option {
	return func(p *ConnectionPool) { p.initial = n }
}

// WithMax sets the maximum number of connections the pool will hold.
func WithMax(n int) Option {
	return func(p *ConnectionPool) { p.max = n }
}

// WithConnectionTimeout sets how long an idle connection may go
// unused before the reaper is eligible to close it.
func WithConnectionTimeout(d time.Duration) Option {
	return func(p *ConnectionPool) { p.connectionTimeout = d }
}

// WithSweepInterval sets how often the background reaper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(p *ConnectionPool) { p.sweepInterval = d }
}

// WithReaperEnabled turns the background reaper goroutine on or off.
// It is on by default, matching the source's automatic reaper start;
// pass false to disable it.
func WithReaperEnabled(enabled bool) Option {
	return func(p *ConnectionPool) { p.reaperEnabled = enabled }
}

// WithLogger overrides the pool's logger. The default discards output.
func WithLogger(l logger.Logger) Option {
	return func(p *ConnectionPool) { p.logger = l }
}

// WithSlowOpThreshold logs a warning whenever a timed connection
// operation (a direct Execute or ExecuteQuery without args, Prepare,
// BeginTransaction, Commit, Rollback) takes at least d. Pings and
// PreparedStatement executions are not timed. Zero disables it.
func WithSlowOpThreshold(d time.Duration) Option {
	return func(p *ConnectionPool) { p.slowOpThreshold = d }
}

// WithCircuitBreaker fast-fails new-connection attempts for cooldown
// after consecutiveFailures dial failures in a row, instead of letting
// every acquisition pay the backend's full connect timeout while it is
// down.
func WithCircuitBreaker(consecutiveFailures int, cooldown time.Duration) Option {
	return func(p *ConnectionPool) {
		p.breaker = newCircuitBreaker(consecutiveFailures, cooldown)
	}
}

// New builds a pool for the backend registered under rawURL's protocol.
// The pool is not usable until Start is called.
func New(rawURL string, opts ...Option) (*ConnectionPool, error) {
	u, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	backend, ok := driverapi.Lookup(u.Protocol())
	if !ok {
		return nil, zerr.New("no backend registered for protocol %q", u.Protocol())
	}
	p := &ConnectionPool{
		url:               u,
		backend:           backend,
		logger:            logger.Discard(),
		initial:           defaultInitConnections,
		max:               defaultMaxConnections,
		connectionTimeout: defaultConnectionTimeout,
		sweepInterval:     defaultSweepInterval,
		reaperEnabled:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	zerr.Assertf(p.initial <= p.max, "initial connections (%d) must be <= max connections (%d)", p.initial, p.max)
	zerr.Assertf(p.initial >= 0, "initial connections must be >= 0")
	return p, nil
}

// URL returns the pool's connection descriptor.
func (p *ConnectionPool) URL() *dburl.URL { return p.url }

// Initial returns the configured number of connections opened at Start.
func (p *ConnectionPool) Initial() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initial
}

// SetInitial changes the initial fill count. The fill takes effect on the
// next Start; a running pool is not grown to the new count, but the
// reaper trims idle connections toward it from its next sweep on.
func (p *ConnectionPool) SetInitial(n int) {
	zerr.Assertf(n >= 0, "initial connections must be >= 0")
	p.mu.Lock()
	defer p.mu.Unlock()
	zerr.Assertf(n <= p.max, "initial connections (%d) must be <= max connections (%d)", n, p.max)
	p.initial = n
}

// Max returns the configured maximum pool size.
func (p *ConnectionPool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// SetMax changes the maximum pool size.
func (p *ConnectionPool) SetMax(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zerr.Assertf(p.initial <= n, "initial connections (%d) must be <= max connections (%d)", p.initial, n)
	p.max = n
}

// ConnectionTimeout returns how long an idle connection may go unused
// before the reaper may close it.
func (p *ConnectionPool) ConnectionTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectionTimeout
}

// SetConnectionTimeout changes the idle timeout.
func (p *ConnectionPool) SetConnectionTimeout(d time.Duration) {
	zerr.Assertf(d > 0, "connection timeout must be > 0")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectionTimeout = d
}

// SweepInterval returns how often the background reaper runs.
func (p *ConnectionPool) SweepInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweepInterval
}

// SetSweepInterval changes the reaper interval. Takes effect the next
// time the reaper wakes.
func (p *ConnectionPool) SetSweepInterval(d time.Duration) {
	zerr.Assertf(d > 0, "sweep interval must be > 0")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepInterval = d
}

// Size returns the current number of connections held by the pool,
// available and in-use combined.
func (p *ConnectionPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Active returns the number of connections currently checked out.
func (p *ConnectionPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active()
}

func (p *ConnectionPool) active() int {
	n := 0
	for _, c := range p.conns {
		if !c.available {
			n++
		}
	}
	return n
}

// IsFull reports whether every connection the pool is allowed to hold
// is currently checked out (active == max), per the documented
// definition of "full" -- a pool that is merely at Size() == Max() but
// has idle connections is not full.
func (p *ConnectionPool) IsFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active() >= p.max
}

func (p *ConnectionPool) dial() (*Connection, error) {
	if p.breaker != nil && !p.breaker.allow() {
		return nil, zerr.New("circuit breaker open -- backend appears to be down")
	}
	if p.distBreaker != nil && !p.distBreaker.allow(context.Background()) {
		return nil, zerr.New("distributed circuit breaker open -- backend appears to be down")
	}
	raw, err := p.backend.Open(p.url)
	if err != nil {
		if p.breaker != nil {
			p.breaker.recordFailure()
		}
		if p.distBreaker != nil {
			p.distBreaker.recordFailure(context.Background())
		}
		return nil, zerr.Wrap(err, "failed to create a connection")
	}
	if p.breaker != nil {
		p.breaker.recordSuccess()
	}
	if p.distBreaker != nil {
		p.distBreaker.recordSuccess(context.Background())
	}
	return newConnection(p, raw), nil
}

func (p *ConnectionPool) fill() bool {
	for i := 0; i < p.initial; i++ {
		c, err := p.dial()
		if err != nil {
			if i > 0 {
				p.logger.Warn("failed to fill the pool with initial connections -- %v", err)
				return true
			}
			return false
		}
		c.available = true
		p.conns = append(p.conns, c)
	}
	return true
}

func (p *ConnectionPool) drain() {
	for _, c := range p.conns {
		_ = c.destroy()
	}
	p.conns = nil
}

// Start fills the pool with its initial connections and, unless the
// reaper was disabled with WithReaperEnabled(false), starts the
// background sweep goroutine. It fails with a SQL error if even the first connection
// could not be opened.
func (p *ConnectionPool) Start() error {
	p.mu.Lock()
	p.stopped = false
	var fillErr error
	if !p.filled {
		p.filled = p.fill()
		if !p.filled {
			fillErr = zerr.New("failed to start connection pool")
		}
	}
	filled := p.filled
	p.mu.Unlock()

	if fillErr != nil {
		return fillErr
	}
	if filled && p.reaperEnabled && p.reaperStop == nil {
		p.reaperStop = make(chan struct{})
		p.reaperDone = make(chan struct{})
		go p.reaperLoop(p.reaperStop, p.reaperDone)
	}
	return nil
}

// Stop drains every connection in the pool and, if running, stops the
// background reaper. It refuses to stop while connections are checked
// out, since draining would close handles a caller still holds.
func (p *ConnectionPool) Stop() error {
	p.mu.Lock()
	if p.active() > 0 {
		p.mu.Unlock()
		return zerr.New("cannot stop the pool while %d connection(s) are active", p.Active())
	}
	p.stopped = true
	wasFilled := p.filled
	if wasFilled {
		p.drain()
		p.filled = false
	}
	p.mu.Unlock()

	if p.reaperStop != nil {
		close(p.reaperStop)
		<-p.reaperDone
		p.reaperStop = nil
		p.reaperDone = nil
	}
	if p.distBreaker != nil {
		_ = p.distBreaker.close()
	}
	return nil
}

func (p *ConnectionPool) findAvailable() *Connection {
	for _, c := range p.conns {
		if c.available {
			c.available = false
			return c
		}
	}
	return nil
}

// GetConnection acquires a connection, retrying past stale pool members
// that fail their ping check up to a fixed retry budget. It does not
// block: once the pool is full of in-use connections, it fails
// immediately rather than waiting for one to free up (spec §4.6,
// Non-goals -- no waiter queue).
func (p *ConnectionPool) GetConnection(ctx context.Context) (*Connection, error) {
	label := p.url.String()
	timer := prometheus.NewTimer(acquireDuration.WithLabelValues(label))
	defer timer.ObserveDuration()

	con, err := p.getConnection(ctx)
	if err != nil {
		acquireTotal.WithLabelValues(label, "failure").Inc()
		return nil, err
	}
	acquireTotal.WithLabelValues(label, "success").Inc()
	p.mu.Lock()
	p.reportGauges()
	p.mu.Unlock()
	return con, nil
}

func (p *ConnectionPool) getConnection(ctx context.Context) (*Connection, error) {
	var lastErr error
	for retries := 0; retries < maxAcquireRetries; retries++ {
		p.mu.Lock()
		con := p.findAvailable()
		size := len(p.conns)
		p.mu.Unlock()

		if con == nil {
			if size < p.Max() {
				c, err := p.dial()
				if err != nil {
					return nil, err // no retry on connection-creation failure
				}
				c.available = false
				p.mu.Lock()
				if len(p.conns) >= p.max {
					// another caller filled the pool while this one dialed
					p.mu.Unlock()
					_ = c.destroy()
					return nil, zerr.New("pool is full -- max connections reached")
				}
				p.conns = append(p.conns, c)
				p.mu.Unlock()
				return c, nil
			}
			return nil, zerr.New("pool is full -- max connections reached")
		}

		if err := con.Ping(ctx); err == nil {
			return con, nil
		}
		p.mu.Lock()
		p.removeConn(con)
		p.mu.Unlock()
		_ = con.destroy()
		lastErr = zerr.New("connection failed its ping test")
	}
	if lastErr == nil {
		lastErr = zerr.New("failed to get a connection")
	}
	return nil, zerr.New("failed to get a connection that passed the ping test after %d attempts -- %v", maxAcquireRetries, lastErr)
}

func (p *ConnectionPool) removeConn(con *Connection) {
	for i, c := range p.conns {
		if c == con {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

// ReturnConnection rolls back any open transaction, clears live
// statements and result sets, refreshes the connection's last-access
// time, and marks the connection available again for the next
// GetConnection call.
func (p *ConnectionPool) ReturnConnection(con *Connection) {
	if con.InTransaction() {
		if err := con.Rollback(); err != nil {
			p.logger.Warn("failed to roll back transaction on return -- %v", err)
		}
	}
	con.Clear()
	con.touch()
	p.mu.Lock()
	con.available = true
	p.reportGauges()
	p.mu.Unlock()
}

func (p *ConnectionPool) reap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	excess := len(p.conns) - p.active() - p.initial
	timedOut := time.Now().Add(-p.connectionTimeout)
	for i := 0; n < excess && i < len(p.conns); i++ {
		con := p.conns[i]
		if !con.available {
			continue
		}
		if con.LastAccessed().Before(timedOut) || con.Ping(context.Background()) != nil {
			_ = con.destroy()
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			n++
			i--
		}
	}
	if n > 0 {
		reaped.WithLabelValues(p.url.String()).Add(float64(n))
	}
	p.reportGauges()
	return n
}

// ReapNow synchronously runs one reaper sweep and returns how many idle,
// timed-out or dead connections it removed. It can be called whether or
// not the background reaper is enabled.
func (p *ConnectionPool) ReapNow() int {
	return p.reap()
}

func (p *ConnectionPool) reaperLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := p.SweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n := p.reap()
			if n > 0 {
				p.logger.Info("reaper removed %d idle connection(s)", n)
			}
			if d := p.SweepInterval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
		}
	}
}
