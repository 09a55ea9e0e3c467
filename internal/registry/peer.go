package registry

import (
	"sync"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

const unknownNamePrefix = "Unknown-"

// Peer is one discoverable simulation node.
type Peer struct {
	address   string // canonical, immutable
	derivedID string // immutable

	mu          sync.RWMutex
	displayName string
	lastStatus  *models.Status
	neighbors   []string            // append-only, discovery order
	neighborSet map[string]struct{} // dedup for neighbors
}

func newPeer(addr, id string) *Peer {
	return &Peer{
		address:     addr,
		derivedID:   id,
		displayName: unknownNamePrefix + id,
		neighborSet: make(map[string]struct{}),
	}
}

// Address returns the canonical endpoint that keys this peer.
func (p *Peer) Address() string { return p.address }

// DerivedID returns the stable id used to correlate presentation elements.
func (p *Peer) DerivedID() string { return p.derivedID }

// DisplayName returns the last reported name, or a placeholder until one arrives.
func (p *Peer) DisplayName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayName
}

// HasStatus reports whether any status report has been ingested.
func (p *Peer) HasStatus() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStatus != nil
}

// LastStatus returns a copy of the most recent report, nil before the first.
func (p *Peer) LastStatus() *models.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStatus.Clone()
}

// Neighbors returns the addresses of every peer this one has reported.
func (p *Peer) Neighbors() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.neighbors...)
}

func (p *Peer) setStatus(st *models.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastStatus = st.Clone()
	if st.Name != "" {
		p.displayName = st.Name
	}
}

// addNeighbor records an edge and reports whether it was new.
func (p *Peer) addNeighbor(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.neighborSet[addr]; ok {
		return false
	}
	p.neighborSet[addr] = struct{}{}
	p.neighbors = append(p.neighbors, addr)
	return true
}
