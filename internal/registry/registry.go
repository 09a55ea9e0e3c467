// Package registry is the discovery graph: the authoritative map of canonical
// peer addresses to Peer records and the neighbor edges observed between them.
// The graph only grows. Peers are never removed and edges are never retracted.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/models"
)

// DiscoveryFunc is invoked once for every newly registered peer. It must not
// block; the lifecycle manager uses it to start the peer's status channel.
type DiscoveryFunc func(p *Peer)

// Registry owns every Peer for the lifetime of the client session.
type Registry struct {
	mu         sync.RWMutex
	peers      map[string]*Peer // canonical address → peer
	byID       map[string]*Peer // derived id → peer
	order      []string         // addresses in discovery order
	normalizer address.Normalizer
	onDiscover DiscoveryFunc
	logger     *zap.Logger
}

// New creates an empty Registry.
func New(normalizer address.Normalizer, logger *zap.Logger) *Registry {
	return &Registry{
		peers:      make(map[string]*Peer),
		byID:       make(map[string]*Peer),
		normalizer: normalizer,
		logger:     logger,
	}
}

// OnDiscover registers the hook fired for each new peer.
func (r *Registry) OnDiscover(fn DiscoveryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDiscover = fn
}

// Resolve returns the Peer for addr, registering it first if it is unknown.
func (r *Registry) Resolve(addr string) *Peer {
	p, _ := r.resolve(addr)
	return p
}

func (r *Registry) resolve(addr string) (*Peer, bool) {
	key := r.normalizer.Canonical(addr)

	r.mu.RLock()
	p, ok := r.peers[key]
	r.mu.RUnlock()
	if ok {
		return p, false
	}

	r.mu.Lock()
	if p, ok := r.peers[key]; ok {
		r.mu.Unlock()
		return p, false
	}
	p = newPeer(key, r.uniqueIDLocked(key))
	r.peers[key] = p
	r.byID[p.derivedID] = p
	r.order = append(r.order, key)
	hook := r.onDiscover
	r.mu.Unlock()

	r.logger.Info("Peer discovered", zap.String("peer", key), zap.String("id", p.derivedID))
	if hook != nil {
		hook(p)
	}
	return p, true
}

// uniqueIDLocked derives a digits-only id from the address, suffixing it when
// two addresses share the same digits. Must be called with the lock held.
func (r *Registry) uniqueIDLocked(key string) string {
	base := DeriveID(key)
	id := base
	for n := 2; ; n++ {
		if _, taken := r.byID[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// DeriveID extracts the digits of addr, e.g. "8001" for "ws://localhost:8001".
func DeriveID(addr string) string {
	var b strings.Builder
	for _, c := range addr {
		if unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

// IngestStatus replaces peer's last status and merges its neighbor list into
// the graph, resolving any neighbor not seen before.
func (r *Registry) IngestStatus(p *Peer, st *models.Status) {
	if p == nil || st == nil {
		return
	}
	p.setStatus(st)

	for _, n := range st.Connections {
		if strings.TrimSpace(n) == "" {
			continue
		}
		neighbor := r.Resolve(n)
		if p.addNeighbor(neighbor.address) {
			r.logger.Debug("Edge recorded",
				zap.String("from", p.address),
				zap.String("to", neighbor.address),
			)
		}
	}
}

// Lookup returns the peer for addr without registering it.
func (r *Registry) Lookup(addr string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[r.normalizer.Canonical(addr)]
	return p, ok
}

// LookupID returns the peer with the given derived id.
func (r *Registry) LookupID(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Peers returns every peer in discovery order.
func (r *Registry) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.peers[key])
	}
	return out
}

// Edge is one directed neighbor relation.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Edges returns a sorted snapshot of every recorded edge.
func (r *Registry) Edges() []Edge {
	var edges []Edge
	for _, p := range r.Peers() {
		for _, n := range p.Neighbors() {
			edges = append(edges, Edge{From: p.address, To: n})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}
