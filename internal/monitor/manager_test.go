package monitor_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/conn/conntest"
	"github.com/sufyanAbbasi/efflux/internal/dispatch"
	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/monitor"
	"github.com/sufyanAbbasi/efflux/internal/registry"
	"github.com/sufyanAbbasi/efflux/internal/storage/local"
)

const (
	peerA = "ws://localhost:8000"
	peerB = "ws://localhost:8001"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// loginReply answers every login with a token named after the peer's port.
func loginReply(r *http.Request) (*http.Response, error) {
	info := models.LoginResponse{SessionToken: "tok-" + r.URL.Port(), Expiry: 1, RenderID: "Nanobot" + r.URL.Port()}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(codec.EncodeLoginResponse(info))),
		Header:     make(http.Header),
		Request:    r,
	}, nil
}

type harness struct {
	m      *monitor.Manager
	dialer *conntest.Dialer
	store  local.SessionStore
	reg    *registry.Registry
}

func newHarness(t *testing.T, opts monitor.Options, transport roundTripFunc) *harness {
	t.Helper()
	return newHarnessWithStore(t, opts, transport, local.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, opts monitor.Options, transport roundTripFunc, store local.SessionStore) *harness {
	t.Helper()
	if transport == nil {
		transport = loginReply
	}
	h := &harness{
		dialer: conntest.NewDialer(),
		store:  store,
		reg:    registry.New(address.Normalizer{}, zap.NewNop()),
	}
	tracker := liveness.NewTracker(time.Second, zap.NewNop())
	opts.HTTPClient = &http.Client{Transport: transport}
	opts.Heartbeat = time.Hour
	h.m = monitor.NewManager(opts, monitor.Deps{
		Registry:   h.reg,
		Dispatcher: dispatch.New(h.reg, tracker, 0, zap.NewNop()),
		Tracker:    tracker,
		Store:      h.store,
		Dialer:     h.dialer,
	}, zap.NewNop())
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) waitSocket(t *testing.T, url string) *conntest.Socket {
	t.Helper()
	require.Eventually(t, func() bool { return h.dialer.Last(url) != nil }, time.Second, time.Millisecond, url)
	return h.dialer.Last(url)
}

func index(events []string, prefix string) int {
	for i, e := range events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

func lastIndex(events []string, prefix string) int {
	for i := len(events) - 1; i >= 0; i-- {
		if strings.HasPrefix(events[i], prefix) {
			return i
		}
	}
	return -1
}

func TestDiscoveryOpensStatusPerPeer(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	root := h.m.Start("localhost:8000")
	assert.Equal(t, peerA, h.m.Root())

	sock := h.waitSocket(t, peerA+"/status")
	sock.Push(codec.EncodeStatus(&models.Status{Name: "Heart", Connections: []string{"localhost:8001", "localhost:8002"}}))

	h.waitSocket(t, peerB+"/status")
	h.waitSocket(t, "ws://localhost:8002/status")
	assert.Equal(t, 3, h.reg.Len())
	assert.Equal(t, "Heart", root.DisplayName())

	require.Eventually(t, func() bool {
		st, ok := h.m.StatusState(peerB)
		return ok && st == conn.Open
	}, time.Second, time.Millisecond)

	views := h.m.Peers()
	require.Len(t, views, 3)
	assert.True(t, views[0].Root)
	assert.Equal(t, "8000", views[0].ID)
	assert.Equal(t, []string{peerB, "ws://localhost:8002"}, views[0].Neighbors)
}

func TestStatusFailureIsNotRetriedByDefault(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	h.dialer.Fail[peerA+"/status"] = errors.New("refused")

	states := make(chan conn.State, 4)
	h.m.OnStatusState(func(peer string, st conn.State) {
		if peer == peerA {
			states <- st
		}
	})
	h.m.Start(peerA)

	select {
	case st := <-states:
		assert.Equal(t, conn.Failed, st)
	case <-time.After(time.Second):
		t.Fatal("no state change")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.Attempts())

	view, ok := h.m.Peer("8000")
	require.True(t, ok)
	assert.Equal(t, "FAILED", view.Channel)
}

func TestStatusRetryIsOptIn(t *testing.T) {
	h := newHarness(t, monitor.Options{RetryAttempts: 3, RetryDelay: time.Millisecond}, nil)
	h.dialer.Fail[peerA+"/status"] = errors.New("refused")

	err := h.m.OpenStatus(context.Background(), h.reg.Resolve(peerA))
	require.Error(t, err)
	// Three from discovery, three from the explicit call.
	require.Eventually(t, func() bool { return h.dialer.Attempts() == 6 }, time.Second, time.Millisecond)
}

func TestActivateOpensSessionAndLogsIn(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	require.NoError(t, h.m.Activate(context.Background(), "localhost:8000"))

	require.NotNil(t, h.m.Active())
	assert.Equal(t, peerA, h.m.Active().Address())
	require.Eventually(t, func() bool {
		info, ok, _ := h.store.Load()
		return ok && info.SessionToken == "tok-8000"
	}, time.Second, time.Millisecond)

	view, ok := h.m.SessionView()
	require.True(t, ok)
	assert.Equal(t, "OPEN", view.Interaction)
	assert.Equal(t, "OPEN", view.Render)
	assert.True(t, view.Heartbeating)
	assert.Equal(t, "Nanobot8000", view.RenderID)

	// Same peer again is a no-op.
	require.NoError(t, h.m.Activate(context.Background(), peerA))
	assert.Equal(t, 1, h.dialer.Count(peerA+"/interactions/stream"))
}

func TestLogoutForgetsStoredSession(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	require.NoError(t, h.m.Activate(context.Background(), peerA))
	require.Eventually(t, func() bool {
		_, ok, _ := h.store.Load()
		return ok
	}, time.Second, time.Millisecond)
	stream := h.dialer.Last(peerA + "/interactions/stream")

	require.NoError(t, h.m.Logout())
	assert.Nil(t, h.m.Active())
	assert.True(t, stream.Released())
	_, ok, err := h.store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	// Nothing active is fine too.
	require.NoError(t, h.m.Logout())
}

func TestSwitchingPeersTearsDownFirst(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	require.NoError(t, h.m.Activate(context.Background(), peerA))
	oldStream := h.dialer.Last(peerA + "/interactions/stream")
	oldRender := h.dialer.Last(peerA + "/render")

	require.NoError(t, h.m.Activate(context.Background(), peerB))
	assert.Equal(t, peerB, h.m.Active().Address())
	assert.True(t, oldStream.Released())
	assert.True(t, oldRender.Released())

	events := h.dialer.Recorder.Events()
	firstNewDial := index(events, "dial "+peerB+"/render")
	require.NotEqual(t, -1, firstNewDial)
	for _, prefix := range []string{
		"close-sent " + peerA + "/interactions/stream",
		"closed " + peerA + "/interactions/stream",
		"closed " + peerA + "/render",
	} {
		i := lastIndex(events, prefix)
		require.NotEqual(t, -1, i, prefix)
		assert.Less(t, i, firstNewDial, prefix)
	}

	// The old socket got CLOSE before its close frame.
	written := oldStream.Written()
	require.NotEmpty(t, written)
	last, err := codec.DecodeInteractionRequest(written[len(written)-1])
	require.NoError(t, err)
	assert.Equal(t, models.InteractionClose, last.Type)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	h.m.Deactivate()

	require.NoError(t, h.m.Activate(context.Background(), peerA))
	h.m.Deactivate()
	h.m.Deactivate()

	assert.Nil(t, h.m.Active())
	assert.Nil(t, h.m.Session())
	_, ok := h.m.SessionView()
	assert.False(t, ok)

	_, err := h.m.Perform(models.InteractionPing, models.Position{}, "", 0)
	assert.ErrorIs(t, err, monitor.ErrNoActivePeer)
}

func TestLoginForSupersededPeerIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	transport := func(r *http.Request) (*http.Response, error) {
		if r.URL.Port() == "8000" {
			select {
			case <-release:
			case <-r.Context().Done():
				return nil, r.Context().Err()
			}
		}
		return loginReply(r)
	}
	h := newHarness(t, monitor.Options{}, transport)

	require.NoError(t, h.m.Activate(context.Background(), peerA))
	require.NoError(t, h.m.Activate(context.Background(), peerB))
	require.Eventually(t, func() bool {
		info, ok, _ := h.store.Load()
		return ok && info.SessionToken == "tok-8001"
	}, time.Second, time.Millisecond)

	close(release)
	time.Sleep(20 * time.Millisecond)
	info, _, _ := h.store.Load()
	assert.Equal(t, "tok-8001", info.SessionToken)
}

// gatedStore holds the save of one token until released.
type gatedStore struct {
	*local.MemoryStore
	token   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(info models.LoginResponse) error {
	if info.SessionToken == g.token {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Save(info)
}

func TestLoginSaveInFlightCannotOverwriteNextPeer(t *testing.T) {
	store := &gatedStore{
		MemoryStore: local.NewMemoryStore(),
		token:       "tok-8000",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	h := newHarnessWithStore(t, monitor.Options{}, nil, store)
	var once sync.Once
	release := func() { once.Do(func() { close(store.release) }) }
	t.Cleanup(release)

	require.NoError(t, h.m.Activate(context.Background(), peerA))
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("login for first peer never saved")
	}

	done := make(chan error, 1)
	go func() { done <- h.m.Activate(context.Background(), peerB) }()

	// The switch waits for the in-flight save.
	select {
	case <-done:
		t.Fatal("switched peers while a save was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		info, ok, _ := store.Load()
		return ok && info.SessionToken == "tok-8001"
	}, time.Second, time.Millisecond)
	assert.Equal(t, peerB, h.m.Active().Address())
	time.Sleep(20 * time.Millisecond)
	info, _, _ := store.Load()
	assert.Equal(t, "tok-8001", info.SessionToken)
}

func TestFailedInteractionDialLeavesNoActivePeer(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	h.dialer.Fail[peerA+"/interactions/stream"] = errors.New("refused")

	err := h.m.Activate(context.Background(), peerA)
	require.Error(t, err)
	assert.Nil(t, h.m.Active())
	assert.True(t, h.dialer.Last(peerA+"/render").Released())
}

func TestActionsReachActivePeer(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	require.NoError(t, h.m.Activate(context.Background(), peerA))

	sent, err := h.m.Perform(models.InteractionMoveTo, models.Position{X: 5, Y: 6}, "", 0)
	require.NoError(t, err)
	assert.True(t, sent)

	written := h.dialer.Last(peerA + "/interactions/stream").Written()
	require.Len(t, written, 1)
	req, err := codec.DecodeInteractionRequest(written[0])
	require.NoError(t, err)
	assert.Equal(t, models.InteractionMoveTo, req.Type)
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newHarness(t, monitor.Options{}, nil)
	h.m.Start(peerA)
	status := h.waitSocket(t, peerA+"/status")
	require.NoError(t, h.m.Activate(context.Background(), peerA))

	h.m.Close()
	assert.True(t, status.Released())
	assert.True(t, h.dialer.Last(peerA+"/interactions/stream").Released())
	assert.ErrorIs(t, h.m.Activate(context.Background(), peerB), monitor.ErrClosed)
}
