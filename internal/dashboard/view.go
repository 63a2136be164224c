package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tc/internal/core"
)

// Styles contains the dashboard's visual styling.
type Styles struct {
	Title    Style
	Status   Style
	Live     Style
	Polling  Style
	Panel    Style
	Heading  Style
	Subtle   Style
	Green    Style
	Yellow   Style
	Red      Style
	Blue     Style
	Magenta  Style
	Question Style
}

// Style aliases lipgloss.Style so the struct above stays scannable.
type Style = lipgloss.Style

// DefaultStyles returns the default dashboard styling.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		Status: lipgloss.NewStyle().
			Bold(true),
		Live: lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")),
		Polling: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Heading: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),
		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Green: lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")),
		Yellow: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")),
		Red: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Blue: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")),
		Magenta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")),
		Question: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220")),
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.snap == nil {
		return m.styles.Subtle.Render("loading project state...")
	}

	width := m.viewWidth()
	leftWidth := 2 * width / 5
	rightWidth := width - leftWidth - 4

	left := m.planView(leftWidth)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.sessionsView(rightWidth),
		m.questionsView(rightWidth),
		m.feedView(rightWidth),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.footerView(),
	)
}

func (m Model) viewWidth() int {
	if m.width > 0 {
		return m.width
	}
	return 100
}

// feedRows is how many event lines fit under the other right-column
// panels.
func (m Model) feedRows() int {
	if m.height == 0 {
		return 12
	}
	rows := m.height - 14
	if rows < 6 {
		return 6
	}
	return rows
}

func (m Model) headerView() string {
	title := m.styles.Title.Render("tc " + m.snap.Project.Name)
	status := m.projectStyle(m.snap.Project.Status).Render(string(m.snap.Project.Status))

	source := m.styles.Polling.Render("polling")
	if m.live {
		source = m.spin.View() + m.styles.Live.Render("live")
	}
	return title + "  " + status + "  " + source
}

func (m Model) planView(width int) string {
	var b strings.Builder
	b.WriteString(m.styles.Heading.Render("Plan"))
	b.WriteString("\n")
	if len(m.snap.Phases) == 0 {
		b.WriteString(m.styles.Subtle.Render("no plan yet, run tc plan"))
	}
	for _, ph := range m.snap.Phases {
		line := fmt.Sprintf("%s %d. %s", phaseIcon(ph.Status), ph.Sequence, ph.Name)
		b.WriteString(m.phaseStyle(ph.Status).Render(line))
		b.WriteString("\n")
		for _, t := range m.snap.TasksForPhase(ph.ID) {
			line := fmt.Sprintf("  %s %s", taskIcon(t), t.Name)
			if t.Kind == core.KindReview {
				line += " (review)"
			}
			if t.RetryCount > 0 {
				line += fmt.Sprintf(" (retry %d)", t.RetryCount)
			}
			b.WriteString(m.taskStyle(t.Status).Render(line))
			b.WriteString("\n")
		}
	}
	return m.styles.Panel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) sessionsView(width int) string {
	var b strings.Builder
	b.WriteString(m.styles.Heading.Render("Sessions"))
	b.WriteString("\n")
	if len(m.sessions) == 0 {
		b.WriteString(m.styles.Subtle.Render("no active sessions"))
	}
	for _, s := range m.sessions {
		badge := m.styles.Blue.Bold(true).Render("CODING")
		if s.Pane == core.PaneReview {
			badge = m.styles.Magenta.Bold(true).Render("REVIEW")
		}
		name := shortID(s.TaskID)
		if t, ok := m.snap.TaskByID(s.TaskID); ok {
			name = t.Name
		}
		elapsed := time.Since(s.StartedAt).Round(time.Second)
		b.WriteString(fmt.Sprintf("%s %s  %s", badge, clip(name, 40), m.styles.Subtle.Render(
			fmt.Sprintf("pid %d  %s", s.ProcessID, elapsed))))
		b.WriteString("\n")
	}
	return m.styles.Panel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

// questionsView lists unanswered Agent questions with the respond
// command that unblocks each. Answering happens outside this view.
func (m Model) questionsView(width int) string {
	if len(m.pending) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Heading.Render("Waiting on you"))
	b.WriteString("\n")
	for _, q := range m.pending {
		b.WriteString(m.styles.Question.Render("? " + clip(q.Question, width-4)))
		b.WriteString("\n")
		b.WriteString(m.styles.Subtle.Render("  tc respond --request " + q.ID + " --answer <text>"))
		b.WriteString("\n")
	}
	return m.styles.Panel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) feedView(width int) string {
	heading := "Events"
	if m.offset > 0 {
		heading += fmt.Sprintf(" (scrolled %d back, a to follow)", m.offset)
	}

	end := len(m.feed) - m.offset
	if end < 0 {
		end = 0
	}
	start := end - m.feedRows()
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString(m.styles.Heading.Render(heading))
	b.WriteString("\n")
	if len(m.feed) == 0 {
		b.WriteString(m.styles.Subtle.Render("no events yet"))
	}
	for _, ev := range m.feed[start:end] {
		b.WriteString(m.eventLine(ev, width))
		b.WriteString("\n")
	}
	return m.styles.Panel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) footerView() string {
	help := m.styles.Subtle.Render("q quit   up/down scroll   a follow")

	var flags []string
	if m.snap.Project.Status == core.ProjectPaused {
		flags = append(flags, m.styles.Yellow.Bold(true).Render("PAUSED"))
	}
	if failed := m.failedTasks(); failed > 0 {
		flags = append(flags, m.styles.Red.Bold(true).Render(fmt.Sprintf("%d failed", failed)))
	}
	if m.lastErr != nil {
		flags = append(flags, m.styles.Red.Render(clip(m.lastErr.Error(), 60)))
	}
	if len(flags) == 0 {
		return help
	}
	return help + "  " + strings.Join(flags, "  ")
}

func (m Model) failedTasks() int {
	n := 0
	for _, t := range m.snap.Tasks {
		if t.Status == core.TaskFailed {
			n++
		}
	}
	return n
}

// eventLine renders one feed row: timestamp, kind, subject, summary.
// The summary is clipped before styling so escape codes stay intact.
func (m Model) eventLine(ev core.Event, width int) string {
	ts := ev.CreatedAt.Local().Format("15:04:05")
	line := m.styles.Subtle.Render(ts) + " " +
		m.kindStyle(ev.Kind).Render(string(ev.Kind))
	if ev.Subject != "" {
		line += " " + shortID(ev.Subject)
	}
	if detail := eventDetail(ev); detail != "" {
		line += " " + clip(detail, width-32)
	}
	return line
}

// eventDetail summarizes an event payload in a few words.
func eventDetail(ev core.Event) string {
	if ev.Payload == "" {
		return ""
	}
	p := gjson.Parse(ev.Payload)
	switch ev.Kind {
	case core.EventStatusChange:
		detail := "-> " + p.Get("to").String()
		if entity := p.Get("entity").String(); entity != "" {
			detail = entity + " " + detail
		}
		if reason := p.Get("reason").String(); reason != "" {
			detail += " (" + reason + ")"
		}
		return detail
	case core.EventProgress:
		note := p.Get("note").String()
		if pct := p.Get("percent"); pct.Exists() {
			return fmt.Sprintf("%d%% %s", pct.Int(), note)
		}
		return note
	case core.EventError:
		return p.Get("message").String()
	case core.EventReviewVerdict:
		detail := p.Get("verdict").String()
		if n := len(p.Get("findings").Array()); n > 0 {
			detail += fmt.Sprintf(" (%d findings)", n)
		}
		return detail
	case core.EventHumanInputRequest:
		return p.Get("question").String()
	case core.EventHumanInputResponse:
		return p.Get("response").String()
	case core.EventOverflow:
		return fmt.Sprintf("%d events dropped", p.Get("dropped").Int())
	}
	return ""
}

func phaseIcon(s core.PhaseStatus) string {
	switch s {
	case core.PhaseCompleted:
		return "[OK]"
	case core.PhaseRunning:
		return "[>>]"
	case core.PhaseFailed:
		return "[!!]"
	case core.PhaseSkipped:
		return "[~~]"
	default:
		return "[--]"
	}
}

func taskIcon(t core.Task) string {
	if t.Status == core.TaskPending && t.RetryCount > 0 {
		return "[~]"
	}
	switch t.Status {
	case core.TaskCompleted:
		return "[x]"
	case core.TaskRunning:
		return "[>]"
	case core.TaskFailed, core.TaskPaused:
		return "[!]"
	case core.TaskSkipped:
		return "[-]"
	default:
		return "[ ]"
	}
}

func (m Model) projectStyle(s core.ProjectStatus) Style {
	switch s {
	case core.ProjectCompleted:
		return m.styles.Green
	case core.ProjectRunning, core.ProjectPlanning:
		return m.styles.Yellow
	case core.ProjectFailed:
		return m.styles.Red
	case core.ProjectPaused:
		return m.styles.Yellow
	default:
		return m.styles.Subtle
	}
}

func (m Model) phaseStyle(s core.PhaseStatus) Style {
	switch s {
	case core.PhaseCompleted:
		return m.styles.Green
	case core.PhaseRunning:
		return m.styles.Yellow.Bold(true)
	case core.PhaseFailed:
		return m.styles.Red
	default:
		return m.styles.Subtle
	}
}

func (m Model) taskStyle(s core.TaskStatus) Style {
	switch s {
	case core.TaskCompleted:
		return m.styles.Green
	case core.TaskRunning:
		return m.styles.Yellow.Bold(true)
	case core.TaskFailed, core.TaskPaused:
		return m.styles.Red
	default:
		return m.styles.Subtle
	}
}

func (m Model) kindStyle(k core.EventKind) Style {
	switch k {
	case core.EventStatusChange:
		return m.styles.Blue
	case core.EventError:
		return m.styles.Red
	case core.EventReviewVerdict:
		return m.styles.Magenta
	case core.EventHumanInputRequest, core.EventHumanInputResponse:
		return m.styles.Question
	default:
		return m.styles.Subtle
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func clip(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
