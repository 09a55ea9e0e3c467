// Package node provides the bootstrap pipeline for the monitor.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/api/grpc/servers"
	"github.com/sufyanAbbasi/efflux/internal/api/rest"
	"github.com/sufyanAbbasi/efflux/internal/config"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/dispatch"
	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/monitor"
	"github.com/sufyanAbbasi/efflux/internal/registry"
	"github.com/sufyanAbbasi/efflux/internal/storage/local"
	"github.com/sufyanAbbasi/efflux/internal/tui"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Controller bootstraps the monitor, wires all components, and runs until shutdown.
type Controller struct {
	cfg    *config.Config
	mode   Mode
	logger *zap.Logger
	dialer conn.Dialer

	// present blocks while the monitor runs; it defaults from mode.
	present func(ctx context.Context, m *monitor.Manager) error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithDialer replaces the websocket dialer.
func WithDialer(d conn.Dialer) Option {
	return func(c *Controller) { c.dialer = d }
}

// WithPresenter replaces what runs in the foreground once bootstrapped.
func WithPresenter(fn func(ctx context.Context, m *monitor.Manager) error) Option {
	return func(c *Controller) { c.present = fn }
}

// NewController creates a Controller for the given mode.
func NewController(cfg *config.Config, mode Mode, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		mode:   mode,
		logger: logger,
		dialer: conn.WebsocketDialer{HandshakeTimeout: cfg.Connection.DialTimeout},
	}
	switch mode {
	case ModeDashboard:
		c.present = func(ctx context.Context, m *monitor.Manager) error {
			return tui.Run(ctx, m, time.Second)
		}
	default:
		c.present = waitForSignal(logger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run bootstraps all components and blocks until SIGINT/SIGTERM, the
// dashboard exits, or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("Starting monitor",
		zap.String("mode", c.mode.String()),
		zap.String("root", c.cfg.Monitor.Root),
	)

	// --- 1. Set up session store ---
	store := c.newStore()
	if err := store.Init(); err != nil {
		return fmt.Errorf("session store init: %w", err)
	}
	defer store.Close()

	// --- 2. Set up discovery graph ---
	normalizer := address.Normalizer{Secure: c.cfg.Monitor.Secure}
	reg := registry.New(normalizer, c.logger)

	// --- 3. Set up liveness and dispatch ---
	var disp *dispatch.Dispatcher
	tracker := liveness.NewTracker(c.cfg.Liveness.Window, c.logger,
		liveness.WithEvict(func(e liveness.Entity) { disp.Evict(e) }),
	)
	disp = dispatch.New(reg, tracker, c.cfg.Connection.RenderQueue, c.logger)

	// --- 4. Set up lifecycle manager ---
	ep := c.cfg.Monitor.Endpoints
	mgr := monitor.NewManager(monitor.Options{
		Endpoints: monitor.Endpoints{
			Status:            ep.Status,
			Render:            ep.Render,
			InteractionLogin:  ep.InteractionLogin,
			InteractionStream: ep.InteractionStream,
		},
		Normalizer:    normalizer,
		DialTimeout:   c.cfg.Connection.DialTimeout,
		RetryAttempts: c.cfg.Connection.RetryAttempts,
		RetryDelay:    c.cfg.Connection.RetryDelay,
		Heartbeat:     c.cfg.Session.Heartbeat,
		LoginTimeout:  c.cfg.Session.LoginTimeout,
	}, monitor.Deps{
		Registry:   reg,
		Dispatcher: disp,
		Tracker:    tracker,
		Store:      store,
		Dialer:     c.dialer,
	}, c.logger)
	defer mgr.Close()

	// --- 5. Set up health export ---
	health := servers.NewHealthServer(normalizer.Canonical(c.cfg.Monitor.Root), c.logger)
	mgr.OnStatusState(health.Observe)
	defer health.Shutdown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gctx := errgroup.WithContext(runCtx)

	// --- 6. Start API servers ---
	var grpcSrv *grpc.Server
	if addr := c.cfg.API.GRPC; addr != "" {
		srv, err := health.Serve(addr)
		if err != nil {
			return fmt.Errorf("health gRPC serve: %w", err)
		}
		grpcSrv = srv
		defer grpcSrv.GracefulStop()
	}

	var restSrv *rest.Server
	if addr := c.cfg.API.REST; addr != "" {
		restSrv = rest.New(mgr, c.logger)
		eg.Go(func() error {
			if err := restSrv.Start(addr); err != nil {
				return fmt.Errorf("REST serve: %w", err)
			}
			return nil
		})
	}

	// --- 7. Start schedulers ---
	eg.Go(func() error {
		tracker.Run(gctx)
		return nil
	})
	eg.Go(func() error {
		c.drainRenderEvents(gctx, disp)
		return nil
	})
	eg.Go(func() error {
		c.reportStats(gctx, reg, tracker, disp)
		return nil
	})

	// --- 8. Resolve the root, which starts discovery ---
	root := mgr.Start(c.cfg.Monitor.Root)
	health.SetRoot(root.Address())
	c.logger.Info("Monitor running",
		zap.String("root", root.Address()),
		zap.String("REST", c.cfg.API.REST),
		zap.String("gRPC", c.cfg.API.GRPC),
	)

	// --- 9. Present until done ---
	presentErr := c.present(gctx, mgr)

	// --- 10. Shut down ---
	cancel()
	mgr.Deactivate()
	if restSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := restSrv.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("REST shutdown", zap.Error(err))
		}
		done()
	}
	err := eg.Wait()
	if presentErr != nil {
		return presentErr
	}
	return err
}

func (c *Controller) newStore() local.SessionStore {
	if path := c.cfg.Session.StorePath; path != "" {
		return local.NewPebbleStorage(path, c.logger)
	}
	c.logger.Info("No session store path; tokens are kept in memory")
	return local.NewMemoryStore()
}

func (c *Controller) drainRenderEvents(ctx context.Context, disp *dispatch.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-disp.Events():
			c.logger.Debug("Render event",
				zap.String("kind", ev.Kind.String()),
				zap.String("id", ev.Entity.ID),
			)
		}
	}
}

func (c *Controller) reportStats(ctx context.Context, reg *registry.Registry, tracker *liveness.Tracker, disp *dispatch.Dispatcher) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.logger.Info("Monitor stats",
				zap.Int("peers", reg.Len()),
				zap.Int("entities", tracker.Len()),
				zap.Int64("droppedRenderEvents", disp.Dropped()),
			)
		}
	}
}

func waitForSignal(logger *zap.Logger) func(ctx context.Context, _ *monitor.Manager) error {
	return func(ctx context.Context, _ *monitor.Manager) error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Shutdown signal received")
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}
		return nil
	}
}
