// Package dashboard renders a read-only terminal view of one project:
// the plan tree, active sessions, unanswered questions, and the event
// feed. It subscribes to the engine's /watch stream when one is
// running and falls back to store polling otherwise. It never writes;
// pause, resume, retry, and respond stay with the CLI.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/internal/engine"
	"github.com/randalmurphal/tc/internal/project"
)

// refreshInterval is the store polling cadence. The websocket makes
// the feed instant when an engine runs; polling keeps the tree moving
// regardless.
const refreshInterval = time.Second

// feedCapacity bounds the in-memory event feed.
const feedCapacity = 200

// Config holds dashboard dependencies.
type Config struct {
	Store     *db.Store
	Paths     project.Paths
	ProjectID string
}

// Model is the bubbletea model. The runtime copies it by value;
// shared state (store handle, websocket) sits behind pointers.
type Model struct {
	store     *db.Store
	paths     project.Paths
	projectID string

	snap     *core.Snapshot
	sessions []core.Session
	pending  []db.HumanInput

	feed   []core.Event
	seen   map[int64]bool
	offset int // 0 follows the tail, >0 is scrolled back

	conn *websocket.Conn
	live bool

	spin    spinner.Model
	styles  Styles
	width   int
	height  int
	lastErr error
}

// New assembles the model; Run attaches it to a terminal.
func New(cfg Config) Model {
	styles := DefaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Live
	return Model{
		store:     cfg.Store,
		paths:     cfg.Paths,
		projectID: cfg.ProjectID,
		seen:      make(map[int64]bool),
		spin:      sp,
		styles:    styles,
	}
}

// Run drives the dashboard until the user quits or ctx ends. A ctx
// cancellation is a normal shutdown, not an error.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	}
	return nil
}

type tickMsg time.Time

type refreshMsg struct {
	snap     *core.Snapshot
	sessions []core.Session
	pending  []db.HumanInput
	events   []core.Event
	err      error
}

type watchOpenMsg struct{ conn *websocket.Conn }

type watchFrameMsg watchFrame

type watchClosedMsg struct{ err error }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.refresh(), m.connectWatch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// refresh reads everything the view needs in one shot.
func (m Model) refresh() tea.Cmd {
	store, projectID := m.store, m.projectID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
		defer cancel()

		snap, err := store.Snapshot(ctx, projectID)
		if err != nil {
			return refreshMsg{err: err}
		}
		sessions, err := store.RunningSessions(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		pending, err := store.PendingHumanInputs(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		events, err := store.ReadEvents(ctx, db.EventQuery{Limit: feedCapacity})
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{snap: snap, sessions: sessions, pending: pending, events: events}
	}
}

// connectWatch dials the engine's /watch stream when a live run file
// points at one.
func (m Model) connectWatch() tea.Cmd {
	paths := m.paths
	return func() tea.Msg {
		info, ok := engine.LiveRunInfo(paths)
		if !ok {
			return watchClosedMsg{}
		}
		url := strings.Replace(info.Endpoint, "http://", "ws://", 1) + "/watch"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return watchClosedMsg{err: err}
		}
		return watchOpenMsg{conn: conn}
	}
}

// waitFrame blocks on the next websocket frame.
func waitFrame(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var f watchFrame
		if err := conn.ReadJSON(&f); err != nil {
			return watchClosedMsg{err: err}
		}
		return watchFrameMsg(f)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.onKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{m.refresh(), tick()}
		if m.conn == nil {
			cmds = append(cmds, m.connectWatch())
		}
		return m, tea.Batch(cmds...)

	case refreshMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.snap = msg.snap
		m.sessions = msg.sessions
		m.pending = msg.pending
		m.mergeEvents(msg.events)
		return m, nil

	case watchOpenMsg:
		m.conn = msg.conn
		m.live = true
		return m, waitFrame(m.conn)

	case watchFrameMsg:
		if m.conn == nil {
			return m, nil
		}
		if msg.Type == "event" {
			m.mergeEvents([]core.Event{watchFrame(msg).event()})
		}
		return m, waitFrame(m.conn)

	case watchClosedMsg:
		m.closeConn()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.closeConn()
		return m, tea.Quit
	case "up", "k":
		if m.offset < len(m.feed)-1 {
			m.offset++
		}
	case "down", "j":
		if m.offset > 0 {
			m.offset--
		}
	case "a", "end":
		m.offset = 0
	}
	return m, nil
}

func (m *Model) closeConn() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.live = false
}

// mergeEvents folds store reads and watch frames into the feed, oldest
// first, deduplicated by event id. Engine heartbeats are noise and
// stay out.
func (m *Model) mergeEvents(events []core.Event) {
	added := false
	for _, ev := range events {
		if ev.Kind == core.EventEngineTick {
			continue
		}
		if m.seen[ev.ID] {
			continue
		}
		m.seen[ev.ID] = true
		m.feed = append(m.feed, ev)
		added = true
	}
	if !added {
		return
	}
	sort.Slice(m.feed, func(i, j int) bool { return m.feed[i].ID < m.feed[j].ID })
	if n := len(m.feed) - feedCapacity; n > 0 {
		for _, ev := range m.feed[:n] {
			delete(m.seen, ev.ID)
		}
		m.feed = append(m.feed[:0], m.feed[n:]...)
	}
}
