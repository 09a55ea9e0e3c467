package session_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/conn/conntest"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/session"
	"github.com/sufyanAbbasi/efflux/internal/storage/local"
)

const (
	peer      = "ws://localhost:8000"
	streamURL = "ws://localhost:8000/interactions/stream"
)

// loginServer answers every login with the next queued response.
type loginServer struct {
	mu       sync.Mutex
	tokens   []string
	replies  []models.LoginResponse
	rejected bool
}

func (l *loginServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req, err := codec.DecodeLoginRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, req.SessionToken)
	if l.rejected {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	var reply models.LoginResponse
	if len(l.replies) > 0 {
		reply, l.replies = l.replies[0], l.replies[1:]
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(codec.EncodeLoginResponse(reply))
}

func (l *loginServer) sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tokens...)
}

func newSession(t *testing.T, loginURL string, store local.SessionStore, hb time.Duration) *session.Session {
	t.Helper()
	return session.New(session.Config{
		Peer:      peer,
		LoginURL:  loginURL,
		Heartbeat: hb,
	}, store, zap.NewNop())
}

// bind opens an interaction Connection for s over a fake socket.
func bind(t *testing.T, s *session.Session) (*conn.Connection, *conntest.Socket) {
	t.Helper()
	d := conntest.NewDialer()
	c := conn.New(conn.RoleInteraction, peer, streamURL, d, zap.NewNop(), conn.WithStateHandler(s.HandleState))
	s.Bind(c)
	require.NoError(t, c.Open(context.Background()))
	return c, d.Last(streamURL)
}

func decodeAll(t *testing.T, frames [][]byte) []*models.InteractionRequest {
	t.Helper()
	out := make([]*models.InteractionRequest, 0, len(frames))
	for _, f := range frames {
		req, err := codec.DecodeInteractionRequest(f)
		require.NoError(t, err)
		out = append(out, req)
	}
	return out
}

func TestLoginStoresAndReusesToken(t *testing.T) {
	srv := &loginServer{replies: []models.LoginResponse{
		{SessionToken: "tok-1", Expiry: 100, RenderID: "Nanobot01"},
		{SessionToken: "tok-1", Expiry: 200, RenderID: "Nanobot01"},
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	store := local.NewMemoryStore()
	s := newSession(t, ts.URL, store, time.Hour)

	require.NoError(t, s.Establish(context.Background(), nil))
	require.NoError(t, s.Establish(context.Background(), nil))

	assert.Equal(t, []string{"", "tok-1"}, srv.sent())
	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, int32(200), info.Expiry)
	assert.Equal(t, "Nanobot01", info.RenderID)
}

func TestEmptyLoginResponseKeepsToken(t *testing.T) {
	ts := httptest.NewServer(&loginServer{})
	defer ts.Close()

	store := local.NewMemoryStore()
	require.NoError(t, store.Save(models.LoginResponse{SessionToken: "keep", Expiry: 5}))
	s := newSession(t, ts.URL, store, time.Hour)

	require.NoError(t, s.Establish(context.Background(), nil))
	assert.Equal(t, "keep", s.Token())
}

func TestRejectedLoginIsAnError(t *testing.T) {
	ts := httptest.NewServer(&loginServer{rejected: true})
	defer ts.Close()

	store := local.NewMemoryStore()
	require.NoError(t, store.Save(models.LoginResponse{SessionToken: "old"}))
	s := newSession(t, ts.URL, store, time.Hour)

	err := s.Establish(context.Background(), nil)
	assert.ErrorIs(t, err, session.ErrLoginRejected)
	assert.Equal(t, "old", s.Token())
}

func TestSupersededLoginIsDiscarded(t *testing.T) {
	ts := httptest.NewServer(&loginServer{replies: []models.LoginResponse{{SessionToken: "late", Expiry: 1}}})
	defer ts.Close()

	store := local.NewMemoryStore()
	s := newSession(t, ts.URL, store, time.Hour)

	require.NoError(t, s.Establish(context.Background(), func(func() error) error { return session.ErrSuperseded }))
	_, ok := s.Info()
	assert.False(t, ok)
}

func TestEstablishSavesInsideGuard(t *testing.T) {
	ts := httptest.NewServer(&loginServer{replies: []models.LoginResponse{{SessionToken: "tok-1", Expiry: 1}}})
	defer ts.Close()

	store := local.NewMemoryStore()
	s := newSession(t, ts.URL, store, time.Hour)

	var before, after bool
	guard := func(adopt func() error) error {
		_, before, _ = store.Load()
		err := adopt()
		_, after, _ = store.Load()
		return err
	}
	require.NoError(t, s.Establish(context.Background(), guard))
	assert.False(t, before)
	assert.True(t, after)
	assert.Equal(t, "tok-1", s.Token())
}

func TestHeartbeatRunsOnlyWhileOpen(t *testing.T) {
	store := local.NewMemoryStore()
	require.NoError(t, store.Save(models.LoginResponse{SessionToken: "hb"}))
	s := newSession(t, "", store, 5*time.Millisecond)

	c, sock := bind(t, s)
	assert.True(t, s.Heartbeating())
	require.Eventually(t, func() bool { return len(sock.Written()) >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	assert.False(t, s.Heartbeating())
	n := len(sock.Written())
	time.Sleep(25 * time.Millisecond)
	assert.Len(t, sock.Written(), n)

	for _, req := range decodeAll(t, sock.Written()) {
		assert.Equal(t, models.InteractionPing, req.Type)
		assert.Equal(t, "hb", req.SessionToken)
	}
}

func TestHeartbeatStopsOnAbruptClose(t *testing.T) {
	s := newSession(t, "", local.NewMemoryStore(), 5*time.Millisecond)
	c, sock := bind(t, s)

	sock.Drop()
	<-c.Done()
	assert.Equal(t, conn.Failed, c.State())
	assert.False(t, s.Heartbeating())
}

func TestTeardownSendsCloseThenReleases(t *testing.T) {
	store := local.NewMemoryStore()
	require.NoError(t, store.Save(models.LoginResponse{SessionToken: "t"}))
	s := newSession(t, "", store, time.Hour)
	c, sock := bind(t, s)

	s.Teardown()
	assert.Equal(t, conn.Closed, c.State())
	assert.True(t, sock.Released())
	assert.False(t, s.Heartbeating())

	reqs := decodeAll(t, sock.Written())
	require.Len(t, reqs, 1)
	assert.Equal(t, models.InteractionClose, reqs[0].Type)
	assert.Equal(t, "t", reqs[0].SessionToken)

	// Idempotent, and nothing more is sent.
	s.Teardown()
	assert.Len(t, sock.Written(), 1)
}

func TestTeardownSkipsCloseWhenNotOpen(t *testing.T) {
	s := newSession(t, "", local.NewMemoryStore(), time.Hour)
	c, sock := bind(t, s)
	sock.Drop()
	<-c.Done()

	s.Teardown()
	assert.Empty(t, sock.Written())

	// Never bound.
	newSession(t, "", local.NewMemoryStore(), time.Hour).Teardown()
}

func TestActionsCarryToken(t *testing.T) {
	store := local.NewMemoryStore()
	require.NoError(t, store.Save(models.LoginResponse{SessionToken: "op"}))
	s := newSession(t, "", store, time.Hour)
	_, sock := bind(t, s)

	assert.True(t, s.MoveTo(3, 4))
	assert.True(t, s.Follow("Bacteria7"))
	assert.True(t, s.Attach("Bacteria7"))
	assert.True(t, s.Detach())
	assert.True(t, s.Inspect("Neuron2"))
	assert.True(t, s.DropSignal(models.CytokineCellStressed))
	assert.True(t, s.Perform(models.InteractionMoveTo, models.Position{X: 9, Y: 9}, "", 0))

	reqs := decodeAll(t, sock.Written())
	require.Len(t, reqs, 7)
	for _, r := range reqs {
		assert.Equal(t, "op", r.SessionToken)
	}
	assert.Equal(t, &models.Position{X: 3, Y: 4}, reqs[0].Position)
	assert.Equal(t, "Bacteria7", reqs[1].TargetCell)
	assert.Equal(t, models.InteractionInfo, reqs[4].Type)
	assert.Equal(t, models.CytokineCellStressed, reqs[5].CytokineType)
	assert.Equal(t, int32(9), reqs[6].Position.X)
}

func TestInvalidActionsAreRefusedLocally(t *testing.T) {
	s := newSession(t, "", local.NewMemoryStore(), time.Hour)
	_, sock := bind(t, s)

	assert.False(t, s.DropSignal(models.CytokineUnknown))
	assert.False(t, s.Follow(""))
	assert.False(t, s.Perform(models.InteractionClose, models.Position{}, "", 0))
	assert.Empty(t, sock.Written())
}

func TestActionsOnClosedConnectionAreNoOps(t *testing.T) {
	s := newSession(t, "", local.NewMemoryStore(), time.Hour)
	assert.False(t, s.MoveTo(1, 1))

	c, _ := bind(t, s)
	require.NoError(t, c.Close())
	assert.False(t, s.Detach())
	assert.False(t, s.Ping())
}

func TestLastResult(t *testing.T) {
	s := newSession(t, "", local.NewMemoryStore(), time.Hour)
	assert.Nil(t, s.LastResult())

	s.HandleResponse(&models.InteractionResponse{Status: models.ResponseFailure, ErrorMessage: "no target"})
	s.HandleResponse(&models.InteractionResponse{AttachedTo: "Bacteria7"})

	got := s.LastResult()
	require.NotNil(t, got)
	assert.Equal(t, "Bacteria7", got.Response.AttachedTo)
	assert.False(t, got.ReceivedAt.IsZero())
}
