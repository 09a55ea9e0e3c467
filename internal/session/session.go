// Package session runs the authenticated interactive context for the active
// peer: login, token persistence, heartbeat, operator actions and teardown.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/storage/local"
)

const (
	DefaultHeartbeat    = 5 * time.Second
	DefaultLoginTimeout = 5 * time.Second
)

// ErrSuperseded is returned by a Guard once its session is no longer the
// active one.
var ErrSuperseded = errors.New("session superseded")

// Guard runs adopt only while the session is still current and holds off any
// peer switch until adopt returns.
type Guard func(adopt func() error) error

// Config describes one peer's interaction endpoints.
type Config struct {
	Peer         string
	LoginURL     string
	Heartbeat    time.Duration
	LoginTimeout time.Duration
}

// Result is the latest interaction response and when it arrived.
type Result struct {
	Response   *models.InteractionResponse `json:"response"`
	ReceivedAt time.Time                   `json:"receivedAt"`
}

// Session is bound to one interaction Connection and is not reused after
// Teardown.
type Session struct {
	cfg    Config
	store  local.SessionStore
	client *http.Client
	logger *zap.Logger

	mu   sync.Mutex
	conn *conn.Connection
	hb   *heartbeat
	last *Result
	torn bool
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient replaces the client used for login.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

func New(cfg Config, store local.SessionStore, logger *zap.Logger, opts ...Option) *Session {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}
	s := &Session{
		cfg:    cfg,
		store:  store,
		client: http.DefaultClient,
		logger: logger.With(zap.String("peer", cfg.Peer)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Peer() string { return s.cfg.Peer }

// Bind attaches the interaction Connection. The Connection must have been
// created with HandleState as a state handler.
func (s *Session) Bind(c *conn.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
}

// Conn returns the bound interaction Connection, or nil.
func (s *Session) Conn() *conn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// HandleState starts the heartbeat when the interaction Connection opens and
// stops it, synchronously, as soon as it leaves Open.
func (s *Session) HandleState(_ *conn.Connection, from, to conn.State) {
	switch {
	case to == conn.Open:
		s.mu.Lock()
		if s.hb == nil && !s.torn {
			s.hb = startHeartbeat(s.cfg.Heartbeat, func() { s.Ping() })
		}
		s.mu.Unlock()
	case from == conn.Open:
		s.stopHeartbeat()
	}
}

func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	hb := s.hb
	s.hb = nil
	s.mu.Unlock()
	if hb != nil {
		hb.Stop()
	}
}

// Heartbeating reports whether the PING timer is live.
func (s *Session) Heartbeating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hb != nil
}

// Login sends the stored token, or an empty one on first use, and returns the
// peer's answer without storing it.
func (s *Session) Login(ctx context.Context) (models.LoginResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()
	return postLogin(ctx, s.client, s.cfg.LoginURL, s.Token())
}

// Adopt persists a login answer. An answer with neither token nor expiry is a
// refresh failure and leaves the stored session untouched.
func (s *Session) Adopt(info models.LoginResponse) (bool, error) {
	if info.SessionToken == "" && info.Expiry == 0 {
		s.logger.Debug("Login returned no session, keeping stored token")
		return false, nil
	}
	if err := s.store.Save(info); err != nil {
		return false, err
	}
	s.logger.Info("Session established",
		zap.String("renderId", info.RenderID),
		zap.Int32("expiry", info.Expiry),
	)
	return true, nil
}

// Establish logs in and adopts the answer through guard, so a result for a
// superseded Connection is dropped and never races the next session's save.
// A nil guard adopts unconditionally.
func (s *Session) Establish(ctx context.Context, guard Guard) error {
	info, err := s.Login(ctx)
	if err != nil {
		s.logger.Warn("Login failed", zap.Error(err))
		return err
	}
	adopt := func() error {
		_, err := s.Adopt(info)
		return err
	}
	if guard == nil {
		return adopt()
	}
	if err := guard(adopt); err != nil {
		if errors.Is(err, ErrSuperseded) {
			s.logger.Debug("Discarding login for superseded session")
			return nil
		}
		return err
	}
	return nil
}

// Info returns the stored session, if any.
func (s *Session) Info() (models.LoginResponse, bool) {
	info, ok, err := s.store.Load()
	if err != nil {
		s.logger.Warn("Failed to load session", zap.Error(err))
		return models.LoginResponse{}, false
	}
	return info, ok
}

// Token returns the stored session token, or "".
func (s *Session) Token() string {
	info, _ := s.Info()
	return info.SessionToken
}

// send writes one control message. A missing or non-open Connection returns
// conn.ErrNotOpen.
func (s *Session) send(req *models.InteractionRequest) error {
	c := s.Conn()
	if c == nil {
		return conn.ErrNotOpen
	}
	req.SessionToken = s.Token()
	return c.Send(codec.EncodeInteractionRequest(req))
}

// fire sends req and swallows the failure; actions never error to the caller.
func (s *Session) fire(req *models.InteractionRequest) bool {
	if err := s.send(req); err != nil {
		if errors.Is(err, conn.ErrNotOpen) {
			s.logger.Debug("Interaction dropped, connection not open", zap.String("type", req.Type.String()))
		} else {
			s.logger.Warn("Interaction send failed", zap.String("type", req.Type.String()), zap.Error(err))
		}
		return false
	}
	return true
}

func (s *Session) Ping() bool {
	return s.fire(&models.InteractionRequest{Type: models.InteractionPing})
}

func (s *Session) MoveTo(x, y int32) bool {
	return s.fire(&models.InteractionRequest{Type: models.InteractionMoveTo, Position: &models.Position{X: x, Y: y}})
}

func (s *Session) Follow(target string) bool {
	return s.targeted(models.InteractionFollow, target)
}

func (s *Session) Attach(target string) bool {
	return s.targeted(models.InteractionAttach, target)
}

func (s *Session) Detach() bool {
	return s.fire(&models.InteractionRequest{Type: models.InteractionDetach})
}

// Inspect asks the peer for the target cell's status.
func (s *Session) Inspect(target string) bool {
	return s.targeted(models.InteractionInfo, target)
}

// DropSignal releases a cytokine at the operator's position.
func (s *Session) DropSignal(ct models.CytokineType) bool {
	if ct == models.CytokineUnknown {
		s.logger.Warn("Refusing to drop an unknown cytokine")
		return false
	}
	return s.fire(&models.InteractionRequest{Type: models.InteractionDropCytokine, CytokineType: ct})
}

func (s *Session) targeted(t models.InteractionType, target string) bool {
	if target == "" {
		s.logger.Warn("Interaction needs a target cell", zap.String("type", t.String()))
		return false
	}
	return s.fire(&models.InteractionRequest{Type: t, TargetCell: target})
}

// Perform dispatches an operator action by type.
func (s *Session) Perform(t models.InteractionType, pos models.Position, target string, ct models.CytokineType) bool {
	switch t {
	case models.InteractionPing:
		return s.Ping()
	case models.InteractionMoveTo:
		return s.MoveTo(pos.X, pos.Y)
	case models.InteractionFollow:
		return s.Follow(target)
	case models.InteractionAttach:
		return s.Attach(target)
	case models.InteractionDetach:
		return s.Detach()
	case models.InteractionInfo:
		return s.Inspect(target)
	case models.InteractionDropCytokine:
		return s.DropSignal(ct)
	default:
		// CLOSE is reserved for Teardown.
		s.logger.Warn("Unsupported interaction", zap.String("type", t.String()))
		return false
	}
}

// HandleResponse records an inbound interaction result.
func (s *Session) HandleResponse(resp *models.InteractionResponse) {
	if resp == nil {
		return
	}
	if resp.Status == models.ResponseFailure {
		s.logger.Warn("Interaction failed", zap.String("error", resp.ErrorMessage))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &Result{Response: resp, ReceivedAt: time.Now()}
}

// LastResult returns the most recent interaction response, or nil.
func (s *Session) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// Teardown sends CLOSE if the Connection is still open, closes it and cancels
// the heartbeat. It always releases the socket, even when CLOSE cannot be
// sent, and is a no-op when repeated.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	c := s.conn
	s.mu.Unlock()

	if c != nil {
		if c.State() == conn.Open {
			if err := s.send(&models.InteractionRequest{Type: models.InteractionClose}); err != nil {
				s.logger.Debug("CLOSE not delivered", zap.Error(err))
			}
		}
		if err := c.Close(); err != nil {
			s.logger.Warn("Interaction close failed", zap.Error(err))
		}
	}
	s.stopHeartbeat()
}
