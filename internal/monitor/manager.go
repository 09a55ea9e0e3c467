package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/dispatch"
	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/registry"
	"github.com/sufyanAbbasi/efflux/internal/session"
	"github.com/sufyanAbbasi/efflux/internal/storage/local"
)

var (
	ErrNoActivePeer = errors.New("no active peer")
	ErrClosed       = errors.New("monitor closed")
)

// Endpoints are the per-peer channel paths.
type Endpoints struct {
	Status            string
	Render            string
	InteractionLogin  string
	InteractionStream string
}

// Options tune the Manager. Zero values fall back to the defaults below.
type Options struct {
	Endpoints     Endpoints
	Normalizer    address.Normalizer
	DialTimeout   time.Duration
	RetryAttempts uint // 1 means a failed status dial is not retried
	RetryDelay    time.Duration
	Heartbeat     time.Duration
	LoginTimeout  time.Duration
	CloseTimeout  time.Duration
	HTTPClient    *http.Client
}

func (o *Options) applyDefaults() {
	if o.Endpoints.Status == "" {
		o.Endpoints.Status = "/status"
	}
	if o.Endpoints.Render == "" {
		o.Endpoints.Render = "/render"
	}
	if o.Endpoints.InteractionLogin == "" {
		o.Endpoints.InteractionLogin = "/interactions/login"
	}
	if o.Endpoints.InteractionStream == "" {
		o.Endpoints.InteractionStream = "/interactions/stream"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = conn.DefaultCloseTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
}

// Deps are the components the Manager drives.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Tracker    *liveness.Tracker
	Store      local.SessionStore
	Dialer     conn.Dialer
}

// StatusObserver is told every state change of every status Connection.
type StatusObserver func(peer string, state conn.State)

// active is the single interactive peer.
type active struct {
	peer        *registry.Peer
	render      *conn.Connection
	interaction *conn.Connection
	session     *session.Session
}

// Manager owns every Connection. It opens one status Connection per
// discovered peer and, for the single active peer, the render and interaction
// Connections plus their Session.
type Manager struct {
	opts     Options
	deps     Deps
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	root     string
	rootOnce sync.Once

	// opMu serializes Activate and Deactivate so a deactivation always
	// completes before the next activation dials.
	opMu sync.Mutex

	activeMu sync.RWMutex
	current  *active

	// adoptMu covers a login's is-current check plus its token save, and
	// the clearing of the active peer, so a stale login cannot land after a
	// switch.
	adoptMu sync.Mutex

	statusMu  sync.RWMutex
	status    map[string]*conn.Connection
	observers []StatusObserver
	closed    bool
}

// NewManager wires the Manager into the registry's discovery hook. Nothing is
// dialed until Start.
func NewManager(opts Options, deps Deps, logger *zap.Logger) *Manager {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:   opts,
		deps:   deps,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		status: make(map[string]*conn.Connection),
	}
	deps.Registry.OnDiscover(m.discovered)
	return m
}

// OnStatusState registers an observer of status Connection states.
func (m *Manager) OnStatusState(fn StatusObserver) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Start resolves the root peer, which begins discovery.
func (m *Manager) Start(root string) *registry.Peer {
	p := m.deps.Registry.Resolve(root)
	m.rootOnce.Do(func() { m.root = p.Address() })
	return p
}

// Root returns the canonical address of the root peer.
func (m *Manager) Root() string { return m.root }

// Registry returns the discovery graph.
func (m *Manager) Registry() *registry.Registry { return m.deps.Registry }

// discovered runs for each new peer and must not block.
func (m *Manager) discovered(p *registry.Peer) {
	m.statusMu.Lock()
	if m.closed {
		m.statusMu.Unlock()
		return
	}
	m.wg.Add(1)
	m.statusMu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := m.OpenStatus(m.ctx, p); err != nil {
			m.logger.Debug("Status channel unavailable", zap.String("peer", p.Address()), zap.Error(err))
		}
	}()
}

func (m *Manager) endpoint(p *registry.Peer, path string) string {
	return address.Endpoint(p.Address(), path)
}

// OpenStatus establishes p's status Connection. With the default of one
// attempt a failure is only logged and the peer stays unreachable.
func (m *Manager) OpenStatus(ctx context.Context, p *registry.Peer) error {
	return retry.Do(func() error {
		c := conn.New(conn.RoleStatus, p.Address(), m.endpoint(p, m.opts.Endpoints.Status), m.deps.Dialer, m.logger,
			conn.WithFrameHandler(m.deps.Dispatcher.Status(p)),
			conn.WithStateHandler(m.statusChanged),
			conn.WithCloseTimeout(m.opts.CloseTimeout),
		)
		if !m.trackStatus(p.Address(), c) {
			return retry.Unrecoverable(ErrClosed)
		}
		dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
		defer cancel()
		return c.Open(dctx)
	},
		retry.Attempts(m.opts.RetryAttempts),
		retry.Delay(m.opts.RetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("Status dial retry", zap.String("peer", p.Address()), zap.Uint("attempt", n), zap.Error(err))
		}),
	)
}

// trackStatus records c as addr's status Connection unless the Manager is closed.
func (m *Manager) trackStatus(addr string, c *conn.Connection) bool {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.closed {
		return false
	}
	m.status[addr] = c
	return true
}

func (m *Manager) statusChanged(c *conn.Connection, _, to conn.State) {
	m.statusMu.RLock()
	observers := append([]StatusObserver(nil), m.observers...)
	m.statusMu.RUnlock()
	for _, fn := range observers {
		fn(c.Peer(), to)
	}
}

// StatusState returns the state of addr's status Connection.
func (m *Manager) StatusState(addr string) (conn.State, bool) {
	m.statusMu.RLock()
	c, ok := m.status[m.opts.Normalizer.Canonical(addr)]
	m.statusMu.RUnlock()
	if !ok {
		return conn.Connecting, false
	}
	return c.State(), true
}

func (m *Manager) getActive() *active {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return m.current
}

func (m *Manager) setActive(a *active) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.current = a
}

// Active returns the active peer, or nil.
func (m *Manager) Active() *registry.Peer {
	if a := m.getActive(); a != nil {
		return a.peer
	}
	return nil
}

// Session returns the active peer's Session, or nil.
func (m *Manager) Session() *session.Session {
	if a := m.getActive(); a != nil {
		return a.session
	}
	return nil
}

// isCurrent reports whether the interaction Connection c is still the active one.
func (m *Manager) isCurrent(c *conn.Connection) bool {
	a := m.getActive()
	return a != nil && a.interaction.ID() == c.ID()
}

// adoptGuard lets a login for c persist its token only while c is current.
func (m *Manager) adoptGuard(c *conn.Connection) session.Guard {
	return func(adopt func() error) error {
		m.adoptMu.Lock()
		defer m.adoptMu.Unlock()
		if !m.isCurrent(c) {
			return session.ErrSuperseded
		}
		return adopt()
	}
}

// Activate makes addr the active peer. Any other active peer is fully
// deactivated first. Login runs in the background; its answer is discarded
// if the peer has changed by the time it arrives.
func (m *Manager) Activate(ctx context.Context, addr string) error {
	p := m.deps.Registry.Resolve(addr)

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.statusMu.RLock()
	closed := m.closed
	m.statusMu.RUnlock()
	if closed {
		return ErrClosed
	}

	if cur := m.getActive(); cur != nil {
		if cur.peer == p && cur.interaction.State() == conn.Open {
			return nil
		}
		m.deactivateLocked()
	}

	sess := session.New(session.Config{
		Peer:         p.Address(),
		LoginURL:     address.Endpoint(m.opts.Normalizer.ToHTTP(p.Address()), m.opts.Endpoints.InteractionLogin),
		Heartbeat:    m.opts.Heartbeat,
		LoginTimeout: m.opts.LoginTimeout,
	}, m.deps.Store, m.logger, session.WithHTTPClient(m.opts.HTTPClient))

	render := conn.New(conn.RoleRender, p.Address(), m.endpoint(p, m.opts.Endpoints.Render), m.deps.Dialer, m.logger,
		conn.WithFrameHandler(m.deps.Dispatcher.Render()),
		conn.WithCloseTimeout(m.opts.CloseTimeout),
	)
	interaction := conn.New(conn.RoleInteraction, p.Address(), m.endpoint(p, m.opts.Endpoints.InteractionStream), m.deps.Dialer, m.logger,
		conn.WithFrameHandler(m.deps.Dispatcher.Interaction(sess)),
		conn.WithStateHandler(sess.HandleState),
		conn.WithCloseTimeout(m.opts.CloseTimeout),
	)
	sess.Bind(interaction)

	a := &active{peer: p, render: render, interaction: interaction, session: sess}
	m.setActive(a)

	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	if err := render.Open(dctx); err != nil {
		// Interaction still works without the entity stream.
		m.logger.Warn("Render channel unavailable", zap.String("peer", p.Address()), zap.Error(err))
	}
	if err := interaction.Open(dctx); err != nil {
		m.deactivateLocked()
		return fmt.Errorf("activate %s: %w", p.Address(), err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = sess.Establish(m.ctx, m.adoptGuard(interaction))
	}()

	m.logger.Info("Peer activated", zap.String("peer", p.Address()), zap.String("id", p.DerivedID()))
	return nil
}

// Deactivate tears down the active peer's Session and render Connection and
// returns once both sockets are released. It is a no-op with no active peer.
func (m *Manager) Deactivate() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.deactivateLocked()
}

// Logout deactivates the active peer and forgets the stored session, so the
// next activation logs in from scratch.
func (m *Manager) Logout() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.deactivateLocked()
	if err := m.deps.Store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.logger.Info("Session cleared")
	return nil
}

func (m *Manager) deactivateLocked() {
	// Waits out a login that is mid-save for the outgoing peer.
	m.adoptMu.Lock()
	a := m.getActive()
	m.setActive(nil)
	m.adoptMu.Unlock()
	if a == nil {
		return
	}

	a.session.Teardown()
	if err := a.render.Close(); err != nil {
		m.logger.Warn("Render close failed", zap.String("peer", a.peer.Address()), zap.Error(err))
	}
	m.logger.Info("Peer deactivated", zap.String("peer", a.peer.Address()))
}

// Close deactivates, closes every status Connection and waits for background
// work to finish. The Manager cannot be restarted.
func (m *Manager) Close() {
	m.statusMu.Lock()
	if m.closed {
		m.statusMu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*conn.Connection, 0, len(m.status))
	for _, c := range m.status {
		conns = append(conns, c)
	}
	m.statusMu.Unlock()

	m.cancel()
	m.Deactivate()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *conn.Connection) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
	m.wg.Wait()
}
