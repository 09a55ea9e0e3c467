// Package tui is the operator dashboard: the discovery graph, the active
// session and the entity count, refreshed on a tick.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sufyanAbbasi/efflux/internal/liveness"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/monitor"
)

const (
	defaultInterval = time.Second
	actionTimeout   = 10 * time.Second
)

// Source is what the dashboard reads and drives.
type Source interface {
	Peers() []monitor.PeerView
	SessionView() (monitor.SessionView, bool)
	Entities() []liveness.Entity
	Activate(ctx context.Context, addr string) error
	Deactivate()
	Perform(t models.InteractionType, pos models.Position, target string, ct models.CytokineType) (bool, error)
}

type tickMsg time.Time

type actionDoneMsg struct {
	what string
	err  error
}

type theme struct {
	header  lipgloss.Style
	panel   lipgloss.Style
	title   lipgloss.Style
	status  lipgloss.Style
	errText lipgloss.Style
	help    lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header: lipgloss.NewStyle().Bold(true).Foreground(blue).Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		title:   lipgloss.NewStyle().Bold(true).Foreground(blue),
		status:  lipgloss.NewStyle().Foreground(blue),
		errText: lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:    lipgloss.NewStyle().Foreground(muted),
	}
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	src      Source
	interval time.Duration

	table    table.Model
	peers    []monitor.PeerView
	session  monitor.SessionView
	active   bool
	entities int

	statusLine string
	lastErr    error
	theme      theme
}

// New creates the dashboard over src; interval <= 0 refreshes every second.
func New(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 12},
			{Title: "Name", Width: 18},
			{Title: "Status", Width: 11},
			{Title: "Links", Width: 5},
			{Title: "O2", Width: 6},
			{Title: "Glucose", Width: 7},
			{Title: "Viral", Width: 6},
			{Title: "", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	m := Model{
		src:        src,
		interval:   interval,
		table:      t,
		statusLine: "starting...",
		theme:      newTheme(),
	}
	m.refresh()
	return m
}

// Run drives the dashboard until the operator quits or ctx is cancelled.
func Run(ctx context.Context, src Source, interval time.Duration) error {
	p := tea.NewProgram(New(src, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func tickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tickEvery(m.interval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, tickEvery(m.interval)
	case actionDoneMsg:
		m.lastErr = msg.err
		if msg.err != nil {
			m.statusLine = msg.what + " failed"
		} else {
			m.statusLine = msg.what
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			p, ok := m.selected()
			if !ok {
				return m, nil
			}
			m.statusLine = "activating " + p.ID + "..."
			return m, m.activateCmd(p.Address, p.ID)
		case "x":
			m.statusLine = "deactivating..."
			return m, m.deactivateCmd()
		case "p":
			return m, m.pingCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) selected() (monitor.PeerView, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.peers) {
		return monitor.PeerView{}, false
	}
	return m.peers[i], true
}

func (m Model) activateCmd(addr, id string) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{what: "activated " + id, err: src.Activate(ctx, addr)}
	}
}

func (m Model) deactivateCmd() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		src.Deactivate()
		return actionDoneMsg{what: "deactivated"}
	}
}

// pingCmd sends a PING, or an INFO on the attached cell when there is one.
func (m Model) pingCmd() tea.Cmd {
	src := m.src
	target := ""
	if m.session.LastResult != nil && m.session.LastResult.Response != nil {
		target = m.session.LastResult.Response.AttachedTo
	}
	return func() tea.Msg {
		t := models.InteractionPing
		if target != "" {
			t = models.InteractionInfo
		}
		sent, err := src.Perform(t, models.Position{}, target, models.CytokineUnknown)
		if err == nil && !sent {
			err = fmt.Errorf("%s not sent", t)
		}
		return actionDoneMsg{what: strings.ToLower(t.String()) + " sent", err: err}
	}
}

func (m *Model) refresh() {
	m.peers = m.src.Peers()
	rows := make([]table.Row, 0, len(m.peers))
	for _, p := range m.peers {
		rows = append(rows, peerRow(p))
	}
	m.table.SetRows(rows)
	m.session, m.active = m.src.SessionView()
	m.entities = len(m.src.Entities())
}

func peerRow(p monitor.PeerView) table.Row {
	o2, glucose, viral := "-", "-", "-"
	if s := p.LastStatus; s != nil {
		o2 = strconv.Itoa(int(s.MaterialStatus.O2))
		glucose = strconv.Itoa(int(s.MaterialStatus.Glucose))
		viral = strconv.Itoa(int(s.MaterialStatus.ViralLoad))
	}
	mark := ""
	switch {
	case p.Active:
		mark = "active"
	case p.Root:
		mark = "root"
	}
	return table.Row{p.ID, p.Name, p.Channel, strconv.Itoa(len(p.Neighbors)), o2, glucose, viral, mark}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.header.Render(fmt.Sprintf("efflux monitor · %d peers · %d entities", len(m.peers), m.entities)))
	b.WriteString("\n")
	b.WriteString(m.theme.panel.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(m.theme.panel.Render(m.sessionPane()))
	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(m.theme.errText.Render(m.statusLine + ": " + m.lastErr.Error()))
	} else {
		b.WriteString(m.theme.status.Render(m.statusLine))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.help.Render("↑/↓ select · enter activate · x deactivate · p ping · q quit"))
	return b.String()
}

func (m Model) sessionPane() string {
	if !m.active {
		return m.theme.title.Render("Session") + "\nno active peer"
	}
	s := m.session
	lines := []string{
		m.theme.title.Render("Session") + " " + s.PeerID + " (" + s.Peer + ")",
		fmt.Sprintf("interaction %s · render %s · heartbeat %t", s.Interaction, s.Render, s.Heartbeating),
		"token " + tokenPrefix(s.Token) + " · render id " + orDash(s.RenderID),
	}
	if r := s.LastResult; r != nil && r.Response != nil {
		line := "last " + r.Response.Status.String()
		if r.Response.ErrorMessage != "" {
			line += ": " + r.Response.ErrorMessage
		}
		if r.Response.AttachedTo != "" {
			line += " · attached to " + r.Response.AttachedTo
		}
		if c := r.Response.TargetCellStatus; c != nil {
			line += fmt.Sprintf(" · target %s damage %d", c.Name, c.Damage)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func tokenPrefix(tok string) string {
	if tok == "" {
		return "-"
	}
	if len(tok) > 8 {
		return tok[:8] + "…"
	}
	return tok
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
