// Package conn implements the per-channel Connection state machine on top of a
// message-oriented socket.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotOpen = errors.New("connection not open")
	// ErrClosed is returned by Open when Close won the race against the dial.
	ErrClosed = errors.New("connection closed before open")
)

// Role names the channel a Connection carries.
type Role string

const (
	RoleStatus      Role = "status"
	RoleRender      Role = "render"
	RoleInteraction Role = "interaction"
)

// DefaultCloseTimeout bounds the wait for the remote close acknowledgement.
const DefaultCloseTimeout = 2 * time.Second

type (
	FrameFunc func(c *Connection, frame []byte)
	StateFunc func(c *Connection, from, to State)
)

// Connection is one logical channel to one peer. It is single-use: a Failed or
// Closed Connection is never reopened.
type Connection struct {
	id     uuid.UUID
	role   Role
	peer   string
	url    string
	dialer Dialer
	logger *zap.Logger

	closeTimeout time.Duration
	onFrame      FrameFunc
	onState      []StateFunc

	mu    sync.Mutex
	state State
	sock  Socket

	done     chan struct{} // closed once a terminal state is reached and the socket is released
	doneOnce sync.Once
}

// Option configures a Connection.
type Option func(*Connection)

// WithFrameHandler sets the callback for inbound frames. It runs on the read
// loop, so frames are handled in arrival order; it must not call Close.
func WithFrameHandler(fn FrameFunc) Option {
	return func(c *Connection) { c.onFrame = fn }
}

// WithStateHandler adds a callback for every state change. Callbacks run
// outside the Connection lock, in transition order.
func WithStateHandler(fn StateFunc) Option {
	return func(c *Connection) { c.onState = append(c.onState, fn) }
}

func WithCloseTimeout(d time.Duration) Option {
	return func(c *Connection) { c.closeTimeout = d }
}

// New creates a Connection in the Connecting state. Nothing is dialed until Open.
func New(role Role, peer, url string, dialer Dialer, logger *zap.Logger, opts ...Option) *Connection {
	c := &Connection{
		id:           uuid.New(),
		role:         role,
		peer:         peer,
		url:          url,
		dialer:       dialer,
		logger:       logger.With(zap.String("peer", peer), zap.String("role", string(role))),
		closeTimeout: DefaultCloseTimeout,
		state:        Connecting,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connection) ID() uuid.UUID { return c.id }
func (c *Connection) Role() Role     { return c.role }
func (c *Connection) Peer() string   { return c.peer }
func (c *Connection) URL() string    { return c.url }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the Connection is terminal, its socket released and
// its state handlers have run.
func (c *Connection) Done() <-chan struct{} { return c.done }

// applyLocked runs the transition. The caller must hold c.mu and must call
// notify with the result after unlocking.
func (c *Connection) applyLocked(e Event) (from, to State, ok bool) {
	from = c.state
	to, ok = Transition(from, e)
	if ok {
		c.state = to
	}
	return from, to, ok
}

func (c *Connection) notify(from, to State) {
	c.logger.Debug("Connection state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	for _, fn := range c.onState {
		fn(c, from, to)
	}
}

func (c *Connection) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Open dials the socket and starts the read loop.
func (c *Connection) Open(ctx context.Context) error {
	if st := c.State(); st != Connecting {
		return fmt.Errorf("open %s connection in state %s: %w", c.role, st, ErrNotOpen)
	}

	sock, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if c.state != Connecting {
		// Closed while dialing.
		c.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return ErrClosed
	}
	if err != nil {
		from, to, _ := c.applyLocked(EventDialFailed)
		c.mu.Unlock()
		c.logger.Warn("Failed to open connection", zap.String("url", c.url), zap.Error(err))
		c.notify(from, to)
		c.finish()
		return fmt.Errorf("open %s connection to %s: %w", c.role, c.peer, err)
	}
	c.sock = sock
	from, to, _ := c.applyLocked(EventOpened)
	c.mu.Unlock()

	c.logger.Info("Connection opened", zap.String("url", c.url))
	c.notify(from, to)
	go c.readLoop(sock)
	return nil
}

func (c *Connection) readLoop(sock Socket) {
	var readErr error
	for {
		frame, err := sock.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if c.State() != Open {
			continue
		}
		if c.onFrame != nil {
			c.onFrame(c, frame)
		}
	}

	c.mu.Lock()
	event := EventAbruptClose
	if c.state == Closing {
		event = EventCloseAcked
	}
	from, to, ok := c.applyLocked(event)
	c.mu.Unlock()

	sock.Close()
	defer c.finish()

	if !ok {
		return
	}
	if to == Failed {
		c.logger.Warn("Connection lost", zap.Error(readErr))
	} else {
		c.logger.Info("Connection closed")
	}
	c.notify(from, to)
}

// Send writes one frame. It fails with ErrNotOpen unless the Connection is Open.
func (c *Connection) Send(frame []byte) error {
	c.mu.Lock()
	if c.state != Open {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("send on %s connection in state %s: %w", c.role, st, ErrNotOpen)
	}
	sock := c.sock
	c.mu.Unlock()

	if err := sock.WriteMessage(frame); err != nil {
		return fmt.Errorf("send on %s connection: %w", c.role, err)
	}
	return nil
}

// Close starts the close handshake and blocks until the read loop confirms the
// socket is gone, or the close timeout forces it. Safe to call repeatedly and
// concurrently.
func (c *Connection) Close() error {
	c.mu.Lock()
	switch c.state {
	case Connecting:
		from, to, _ := c.applyLocked(EventCloseRequested)
		c.mu.Unlock()
		c.notify(from, to)
		c.finish()
		return nil
	case Open:
		from, to, _ := c.applyLocked(EventCloseRequested)
		sock := c.sock
		c.mu.Unlock()
		c.notify(from, to)
		if err := sock.WriteClose(); err != nil {
			c.logger.Debug("Close handshake not sent", zap.Error(err))
			sock.Close()
		}
		c.awaitRelease(sock)
		return nil
	case Closing:
		sock := c.sock
		c.mu.Unlock()
		c.awaitRelease(sock)
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}

func (c *Connection) awaitRelease(sock Socket) {
	timer := time.NewTimer(c.closeTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return
	case <-timer.C:
		c.logger.Debug("Close not acknowledged, releasing socket")
		sock.Close()
	}
	<-c.done
}
