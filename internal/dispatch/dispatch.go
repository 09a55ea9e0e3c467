// Package dispatch decodes inbound frames and routes them to the discovery
// graph, the liveness tracker and the session's result state. Undecodable
// frames are dropped without touching any state.
package dispatch

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/conn"
	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/registry"
	"github.com/sufyanAbbasi/efflux/internal/session"
)

const DefaultQueueSize = 256

// EventKind says what the renderer should do with an entity.
type EventKind int

const (
	Place EventKind = iota
	Remove
)

func (k EventKind) String() string {
	if k == Remove {
		return "remove"
	}
	return "place"
}

// RenderEvent is one renderer instruction.
type RenderEvent struct {
	Kind   EventKind
	Entity liveness.Entity
}

type Dispatcher struct {
	registry *registry.Registry
	tracker  *liveness.Tracker
	events   chan RenderEvent
	dropped  atomic.Int64
	logger   *zap.Logger
}

// New creates a Dispatcher whose render queue holds queueSize events.
func New(reg *registry.Registry, tracker *liveness.Tracker, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		registry: reg,
		tracker:  tracker,
		events:   make(chan RenderEvent, queueSize),
		logger:   logger,
	}
}

// Events is the queue consumed by the renderer.
func (d *Dispatcher) Events() <-chan RenderEvent { return d.events }

// Dropped counts events discarded because the renderer fell behind.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *Dispatcher) emit(ev RenderEvent) {
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Status returns the frame handler for p's status channel.
func (d *Dispatcher) Status(p *registry.Peer) conn.FrameFunc {
	return func(c *conn.Connection, frame []byte) {
		st, err := codec.DecodeStatus(frame)
		if err != nil {
			d.logger.Debug("Dropping status frame", zap.String("peer", c.Peer()), zap.Error(err))
			return
		}
		d.registry.IngestStatus(p, st)
	}
}

// Render returns the frame handler for the active peer's render channel.
func (d *Dispatcher) Render() conn.FrameFunc {
	return func(c *conn.Connection, frame []byte) {
		r, err := codec.DecodeRenderable(frame)
		if err != nil {
			d.logger.Debug("Dropping render frame", zap.String("peer", c.Peer()), zap.Error(err))
			return
		}
		d.tracker.Touch(r)
		d.emit(RenderEvent{Kind: Place, Entity: entityOf(r)})
	}
}

// Interaction returns the frame handler for s's interaction channel.
func (d *Dispatcher) Interaction(s *session.Session) conn.FrameFunc {
	return func(c *conn.Connection, frame []byte) {
		resp, err := codec.DecodeInteractionResponse(frame)
		if err != nil {
			d.logger.Debug("Dropping interaction frame", zap.String("peer", c.Peer()), zap.Error(err))
			return
		}
		s.HandleResponse(resp)
	}
}

// Evict forwards a liveness eviction to the renderer.
func (d *Dispatcher) Evict(e liveness.Entity) {
	d.emit(RenderEvent{Kind: Remove, Entity: e})
}

func entityOf(r *models.Renderable) liveness.Entity {
	return liveness.Entity{
		ID:       r.ID,
		Kind:     models.Kind(r.ID),
		Position: r.Position,
		Visible:  r.Visible,
	}
}
