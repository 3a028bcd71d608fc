package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Option configures a Controller.
type Option func(*Controller)

// WithStorage persists the snapshot. The default keeps it in memory.
func WithStorage(s Storage) Option {
	return func(c *Controller) { c.storage = s }
}

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Listener is called with every new snapshot, outside the controller lock.
type Listener func(Snapshot)

type validation struct {
	done chan struct{}
	err  error
}

// Controller owns the client auth snapshot and keeps the current page
// consistent with it.
//
// Every mutation happens under mu. Listeners and the Navigator are only
// called after mu is released. A mutation that starts while a validation is
// in flight bumps gen, and the stale validation result is then discarded.
type Controller struct {
	backend Backend
	nav     Navigator
	storage Storage
	clock   Clock
	logger  *slog.Logger

	policy atomic.Pointer[Policy]
	cfg    atomic.Pointer[Config]

	mu        sync.Mutex
	snap      Snapshot
	gen       uint64
	inflight  *validation
	heartbeat Timer
	expiry    Timer
	timerGen  uint64
	started   bool
	stopped   bool
	listeners map[int]Listener
	nextID    int
}

// NewController validates cfg and returns a Controller in the uninitialized
// state. Call Start to restore and validate the session.
func NewController(cfg Config, backend Backend, nav Navigator, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil || nav == nil {
		return nil, fmt.Errorf("%w: backend and navigator are required", ErrInvalidConfig)
	}

	c := &Controller{
		backend:   backend,
		nav:       nav,
		storage:   NewMemoryStorage(),
		clock:     RealClock,
		logger:    slog.Default(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "guard")
	c.setConfig(cfg)
	return c, nil
}

func (c *Controller) setConfig(cfg Config) {
	c.cfg.Store(&cfg)
	c.policy.Store(NewPolicy(cfg))
}

// UpdateConfig swaps in new routing rules and timer intervals and re-checks
// the current page. Running timers keep their old deadlines until the next
// validation re-arms them.
func (c *Controller) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.setConfig(cfg)
	c.Enforce()
	return nil
}

// Policy returns the active routing policy.
func (c *Controller) Policy() *Policy { return c.policy.Load() }

func (c *Controller) config() Config { return *c.cfg.Load() }

// GetState returns a copy of the current snapshot.
func (c *Controller) GetState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Subscribe registers l and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Start restores the persisted snapshot and validates it against the server.
// A snapshot older than SessionExpiry is discarded unread. On the login page
// with nothing restored no request is made. Start on a started controller is
// a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopped = false

	restored, ok, err := c.storage.Load()
	if err != nil {
		c.logger.Warn("discarding unreadable snapshot", "error", err)
		ok = false
	}
	restoredAuth := false
	if _, authed := restored.Session().(Authenticated); ok && authed {
		if c.clock.Now().Sub(restored.LastValidated) >= c.config().SessionExpiry {
			c.logger.Info("discarding expired snapshot", "last_validated", restored.LastValidated)
			if err := c.storage.Clear(); err != nil {
				c.logger.Warn("clearing snapshot failed", "error", err)
			}
		} else {
			restored.IsValidating = false
			c.snap = restored
			restoredAuth = true
		}
	}

	// A restored session is confirmed with the server before it can route
	// anywhere, even from the login page.
	onLogin := NormalizePath(c.nav.Path()) == c.Policy().LoginPath()
	if !onLogin || restoredAuth {
		c.mu.Unlock()
		//nolint:errcheck // failures resolve to the anonymous state
		c.Validate(ctx)
		return
	}

	c.snap.IsInitialized = true
	snap, listeners := c.publishLocked()
	c.mu.Unlock()

	c.notify(snap, listeners)
	c.enforce(snap)
}

// Stop cancels the heartbeat and expiry timers. The snapshot is kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.started = false
	c.cancelTimersLocked()
}

// Validate checks the session with the server. A call made while another
// validation is in flight waits for that one and returns its outcome.
//
// Success replaces the cached user with the server's claims and restarts the
// heartbeat and expiry timers. A rejection, transport failure or malformed
// payload clears the snapshot. Cancellation of ctx by the caller leaves the
// previous snapshot in place.
func (c *Controller) Validate(ctx context.Context) error {
	c.mu.Lock()
	if v := c.inflight; v != nil {
		c.mu.Unlock()
		select {
		case <-v.done:
			return v.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	v := &validation{done: make(chan struct{})}
	c.inflight = v
	gen := c.gen
	c.snap.IsValidating = true
	snap, listeners := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, listeners)

	user, err := c.backend.ValidateSession(ctx)
	if err == nil && user.AccessLevel < 1 {
		err = fmt.Errorf("%w: access level %d", ErrSessionInvalid, user.AccessLevel)
	}

	// The caller giving up is not a verdict on the session.
	aborted := err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled)

	c.mu.Lock()
	c.inflight = nil
	if gen == c.gen && aborted {
		c.snap.IsValidating = false
	} else if gen == c.gen {
		if err != nil {
			c.logger.Info("session validation failed", "error", err)
			c.resetLocked()
		} else {
			if prev := c.snap.User; prev != nil && prev.ID == user.ID && user.Name == "" {
				user.Name = prev.Name
			}
			c.snap = authenticatedSnapshot(user, c.clock.Now())
			c.armTimersLocked()
		}
		c.snap.IsValidating = false
		c.snap.IsInitialized = true
		c.persistLocked()
	}
	snap, listeners = c.publishLocked()
	c.mu.Unlock()

	v.err = err
	close(v.done)

	c.notify(snap, listeners)
	if !aborted {
		c.enforce(snap)
	}
	return err
}

// Login signs in and then validates the new session. The validated access
// level must equal the one the login returned; otherwise ErrLevelMismatch is
// returned and the snapshot is cleared. On success the page moves to the
// user's dashboard.
func (c *Controller) Login(ctx context.Context, identifier, password string) (User, error) {
	c.mu.Lock()
	c.gen++
	c.snap.IsValidating = true
	snap, listeners := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, listeners)

	user, err := c.backend.Login(ctx, identifier, password)
	if err == nil {
		var validated User
		validated, err = c.backend.ValidateSession(ctx)
		switch {
		case err != nil:
		case validated.AccessLevel != user.AccessLevel:
			c.logger.Warn("login level mismatch",
				"login_level", user.AccessLevel,
				"session_level", validated.AccessLevel,
			)
			err = ErrLevelMismatch
		default:
			validated.Name = user.Name
			user = validated
		}
	}

	c.mu.Lock()
	c.gen++
	if err != nil {
		c.resetLocked()
	} else {
		c.snap = authenticatedSnapshot(user, c.clock.Now())
		c.armTimersLocked()
	}
	c.snap.IsValidating = false
	c.snap.IsInitialized = true
	c.persistLocked()
	snap, listeners = c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, listeners)

	if err != nil {
		c.enforce(snap)
		return User{}, err
	}
	c.nav.Navigate(c.Policy().DashboardFor(user.AccessLevel))
	return user, nil
}

// Logout clears the snapshot, stops the timers, tells the server and moves to
// the login page. The local state is cleared even when the server call fails;
// that failure is returned for logging.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.resetLocked()
	c.snap.IsInitialized = true
	c.persistLocked()
	snap, listeners := c.publishLocked()
	c.mu.Unlock()
	c.notify(snap, listeners)

	err := c.backend.Logout(ctx)
	if err != nil {
		c.logger.Warn("server logout failed", "error", err)
	}

	if login := c.Policy().LoginPath(); NormalizePath(c.nav.Path()) != login {
		c.nav.Navigate(login)
	}
	return err
}

// SetPath records a navigation by the application and applies the routing
// policy to the new path.
func (c *Controller) SetPath(path string) Decision {
	c.nav.Navigate(path)
	return c.Enforce()
}

// Enforce applies the routing policy to the current page. While a validation
// is in flight or before the first one completes no decision is made.
func (c *Controller) Enforce() Decision {
	return c.enforce(c.GetState())
}

func (c *Controller) enforce(snap Snapshot) Decision {
	if snap.IsValidating || !snap.IsInitialized {
		return Decision{Reason: ReasonAllowed}
	}
	d := c.Policy().Decide(snap.Session(), c.nav.Path())
	if !d.Allowed() {
		c.logger.Debug("redirecting", "from", c.nav.Path(), "to", d.Redirect, "reason", d.Reason)
		c.nav.Navigate(d.Redirect)
	}
	return d
}

// LoadProfile fetches the signed-in profile. A rejected session or a
// transport failure clears the snapshot and sends the page to login.
func (c *Controller) LoadProfile(ctx context.Context) (Profile, error) {
	p, err := c.backend.Profile(ctx)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrSessionInvalid) || Retryable(err) {
		c.mu.Lock()
		c.gen++
		c.resetLocked()
		c.snap.IsInitialized = true
		c.persistLocked()
		snap, listeners := c.publishLocked()
		c.mu.Unlock()
		c.notify(snap, listeners)
		c.nav.Navigate(c.Policy().LoginPath())
	}
	return Profile{}, err
}

func (c *Controller) onHeartbeat(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config().FetchTimeout)
	defer cancel()
	if err := c.Validate(ctx); err != nil {
		c.logger.Warn("heartbeat failed, session ended", "error", err)
	}
}

func (c *Controller) onExpiry(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.resetLocked()
	c.snap.IsInitialized = true
	c.persistLocked()
	snap, listeners := c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("session window elapsed, logging out")
	c.notify(snap, listeners)
	c.enforce(snap)
}

// armTimersLocked (re)starts the heartbeat and the expiry timer measured
// from LastValidated. An already elapsed window expires on the next tick.
func (c *Controller) armTimersLocked() {
	c.cancelTimersLocked()
	if c.stopped {
		return
	}
	cfg := c.config()
	gen := c.timerGen

	remaining := cfg.SessionExpiry - c.clock.Now().Sub(c.snap.LastValidated)
	if remaining < 0 {
		remaining = 0
	}
	c.heartbeat = c.clock.AfterFunc(cfg.HeartbeatInterval, func() { c.onHeartbeat(gen) })
	c.expiry = c.clock.AfterFunc(remaining, func() { c.onExpiry(gen) })
}

func (c *Controller) cancelTimersLocked() {
	c.timerGen++
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
}

func (c *Controller) resetLocked() {
	c.cancelTimersLocked()
	c.snap = anonymousSnapshot()
}

func (c *Controller) persistLocked() {
	var err error
	if _, authed := c.snap.Session().(Authenticated); authed {
		err = c.storage.Save(c.snap)
	} else {
		err = c.storage.Clear()
	}
	if err != nil {
		c.logger.Warn("persisting snapshot failed", "error", err)
	}
}

func (c *Controller) publishLocked() (Snapshot, []Listener) {
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	return c.snap.clone(), listeners
}

func (c *Controller) notify(snap Snapshot, listeners []Listener) {
	for _, l := range listeners {
		l(snap)
	}
}
