// Package conntest provides in-memory sockets and dialers for exercising
// Connections without a network.
package conntest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sufyanAbbasi/efflux/internal/conn"
)

var errCloseSent = errors.New("conntest: close already sent")

// Recorder collects transport events from every socket of a Dialer in order.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) add(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Socket is an in-memory conn.Socket.
type Socket struct {
	URL string

	in       chan []byte
	released chan struct{}
	once     sync.Once
	rec      *Recorder
	noAck    bool

	mu        sync.Mutex
	written   [][]byte
	closeSent bool
}

// NewSocket returns an open Socket. With noAck set the socket ignores the
// close handshake, so only a forced release ends its read side.
func NewSocket(url string, rec *Recorder, noAck bool) *Socket {
	return &Socket{
		URL:      url,
		in:       make(chan []byte, 64),
		released: make(chan struct{}),
		rec:      rec,
		noAck:    noAck,
	}
}

// Push queues an inbound frame.
func (s *Socket) Push(frame []byte) {
	select {
	case s.in <- frame:
	case <-s.released:
	}
}

// Drop simulates the remote side vanishing.
func (s *Socket) Drop() { s.release("dropped") }

func (s *Socket) release(reason string) {
	s.once.Do(func() {
		s.rec.add("%s %s", reason, s.URL)
		close(s.released)
	})
}

// Released reports whether the socket is gone.
func (s *Socket) Released() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}

// Written returns every frame sent on the socket.
func (s *Socket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

func (s *Socket) ReadMessage() ([]byte, error) {
	select {
	case <-s.released:
		return nil, io.EOF
	default:
	}
	select {
	case f := <-s.in:
		return f, nil
	case <-s.released:
		return nil, io.EOF
	}
}

func (s *Socket) WriteMessage(data []byte) error {
	if s.Released() {
		return io.ErrClosedPipe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeSent {
		return errCloseSent
	}
	s.written = append(s.written, append([]byte(nil), data...))
	s.rec.add("write %s", s.URL)
	return nil
}

func (s *Socket) WriteClose() error {
	if s.Released() {
		return io.ErrClosedPipe
	}
	s.mu.Lock()
	s.closeSent = true
	s.mu.Unlock()
	s.rec.add("close-sent %s", s.URL)
	if !s.noAck {
		s.release("closed")
	}
	return nil
}

func (s *Socket) Close() error {
	s.release("closed")
	return nil
}

// Dialer hands out Sockets and records every dial.
type Dialer struct {
	Recorder *Recorder
	// Fail maps urls to dial errors.
	Fail  map[string]error
	NoAck bool
	// Gate, when set, blocks each dial until it is closed or ctx ends.
	Gate chan struct{}

	attempts atomic.Int32
	mu       sync.Mutex
	sockets  map[string][]*Socket
}

// Attempts returns how many dials have started, including ones held at Gate.
func (d *Dialer) Attempts() int { return int(d.attempts.Load()) }

// NewDialer returns a Dialer with its own Recorder.
func NewDialer() *Dialer {
	return &Dialer{Recorder: &Recorder{}, Fail: make(map[string]error)}
}

func (d *Dialer) Dial(ctx context.Context, url string) (conn.Socket, error) {
	d.attempts.Add(1)
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Recorder.add("dial %s", url)
	if err, ok := d.Fail[url]; ok {
		return nil, err
	}
	if d.sockets == nil {
		d.sockets = make(map[string][]*Socket)
	}
	s := NewSocket(url, d.Recorder, d.NoAck)
	d.sockets[url] = append(d.sockets[url], s)
	return s, nil
}

// Last returns the most recent socket dialed for url, or nil.
func (d *Dialer) Last(url string) *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.sockets[url]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Count returns how many sockets were dialed for url.
func (d *Dialer) Count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets[url])
}
