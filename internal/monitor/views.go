package monitor

import (
	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/registry"
	"github.com/sufyanAbbasi/efflux/internal/session"
)

// PeerView is a point-in-time copy of one peer for presentation.
type PeerView struct {
	ID         string         `json:"id"`
	Address    string         `json:"address"`
	Name       string         `json:"name"`
	Channel    string         `json:"statusChannel"`
	Active     bool           `json:"active"`
	Root       bool           `json:"root"`
	Neighbors  []string       `json:"neighbors"`
	LastStatus *models.Status `json:"lastStatus,omitempty"`
}

// SessionView describes the active interactive session.
type SessionView struct {
	Peer         string          `json:"peer"`
	PeerID       string          `json:"peerId"`
	Token        string          `json:"token,omitempty"`
	Expiry       int32           `json:"expiry,omitempty"`
	RenderID     string          `json:"renderId,omitempty"`
	Interaction  string          `json:"interaction"`
	Render       string          `json:"render"`
	Heartbeating bool            `json:"heartbeating"`
	LastResult   *session.Result `json:"lastResult,omitempty"`
}

func (m *Manager) view(p *registry.Peer, activeAddr string) PeerView {
	channel := "PENDING"
	if st, ok := m.StatusState(p.Address()); ok {
		channel = st.String()
	}
	return PeerView{
		ID:         p.DerivedID(),
		Address:    p.Address(),
		Name:       p.DisplayName(),
		Channel:    channel,
		Active:     p.Address() == activeAddr,
		Root:       p.Address() == m.root,
		Neighbors:  p.Neighbors(),
		LastStatus: p.LastStatus(),
	}
}

func (m *Manager) activeAddress() string {
	if p := m.Active(); p != nil {
		return p.Address()
	}
	return ""
}

// Peers returns every discovered peer in discovery order.
func (m *Manager) Peers() []PeerView {
	activeAddr := m.activeAddress()
	peers := m.deps.Registry.Peers()
	out := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		out = append(out, m.view(p, activeAddr))
	}
	return out
}

// Peer looks a peer up by derived id, falling back to address.
func (m *Manager) Peer(key string) (PeerView, bool) {
	p, ok := m.deps.Registry.LookupID(key)
	if !ok {
		p, ok = m.deps.Registry.Lookup(key)
	}
	if !ok {
		return PeerView{}, false
	}
	return m.view(p, m.activeAddress()), true
}

// SessionView returns the active session, or ok=false with no active peer.
func (m *Manager) SessionView() (SessionView, bool) {
	a := m.getActive()
	if a == nil {
		return SessionView{}, false
	}
	info, _ := a.session.Info()
	return SessionView{
		Peer:         a.peer.Address(),
		PeerID:       a.peer.DerivedID(),
		Token:        info.SessionToken,
		Expiry:       info.Expiry,
		RenderID:     info.RenderID,
		Interaction:  a.interaction.State().String(),
		Render:       a.render.State().String(),
		Heartbeating: a.session.Heartbeating(),
		LastResult:   a.session.LastResult(),
	}, true
}

// Perform sends an operator action over the active session.
func (m *Manager) Perform(t models.InteractionType, pos models.Position, target string, ct models.CytokineType) (bool, error) {
	s := m.Session()
	if s == nil {
		return false, ErrNoActivePeer
	}
	return s.Perform(t, pos, target, ct), nil
}

// Entities returns the tracked render-stream entities.
func (m *Manager) Entities() []liveness.Entity {
	if m.deps.Tracker == nil {
		return nil
	}
	return m.deps.Tracker.Snapshot()
}

// Edges returns every recorded neighbor relation.
func (m *Manager) Edges() []registry.Edge {
	return m.deps.Registry.Edges()
}
