package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/internal/engine"
	"github.com/randalmurphal/tc/internal/project"
)

// statusReport is the --json shape for tc status.
type statusReport struct {
	Project  core.Project      `json:"project"`
	Engine   *engine.RunInfo   `json:"engine,omitempty"`
	Phases   []core.Phase      `json:"phases"`
	Tasks    []core.Task       `json:"tasks"`
	Sessions []core.Session    `json:"sessions,omitempty"`
	Pending  []db.HumanInput   `json:"pending_input,omitempty"`
	Deps     []core.Dependency `json:"dependencies,omitempty"`
}

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show project status",
		Long: `Show the project at a glance: engine liveness, phase progress,
running sessions, and anything waiting on a human.

Completed tasks are folded into the per-phase counts; --all lists
every task.

Examples:
  tc status
  tc status --all
  tc status --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			snap, err := h.Store.Snapshot(ctx, h.Project.ID)
			if err != nil {
				return err
			}
			sessions, err := h.Store.RunningSessions(ctx)
			if err != nil {
				return err
			}
			pending, err := h.Store.PendingHumanInputs(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				report := statusReport{
					Project:  snap.Project,
					Phases:   snap.Phases,
					Tasks:    snap.Tasks,
					Sessions: sessions,
					Pending:  pending,
					Deps:     snap.Deps,
				}
				if info, live := engine.LiveRunInfo(h.Paths); live {
					report.Engine = &info
				}
				return printJSON(report)
			}

			printStatus(snap, sessions, pending, h.Paths, all)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every task, not just active ones")
	return cmd
}

func printStatus(snap *core.Snapshot, sessions []core.Session, pending []db.HumanInput, paths project.Paths, all bool) {
	// Error contexts carry pane tails; give them whatever width the
	// terminal has beyond the fixed columns.
	detailWidth := 50
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 110 {
		detailWidth = w - 60
	}

	fmt.Printf("Project: %s [%s]\n", snap.Project.Name, snap.Project.Status)
	if info, live := engine.LiveRunInfo(paths); live {
		fmt.Printf("Engine:  running (pid %d, since %s)\n", info.PID, info.StartedAt.Format("15:04:05"))
	} else {
		fmt.Println("Engine:  stopped")
	}
	fmt.Println()

	sessionByTask := make(map[string]core.Session, len(sessions))
	for _, s := range sessions {
		sessionByTask[s.TaskID] = s
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, p := range snap.Phases {
		var tasks []core.Task
		done := 0
		for _, t := range snap.Tasks {
			if t.PhaseID != p.ID {
				continue
			}
			tasks = append(tasks, t)
			if t.Status.IsFinished() {
				done++
			}
		}
		fmt.Printf("Phase %d: %s [%s] (%d/%d)\n", p.Sequence, p.Name, p.Status, done, len(tasks))
		for _, t := range tasks {
			if !all && t.Status.IsFinished() {
				continue
			}
			detail := ""
			switch t.Status {
			case core.TaskRunning:
				if s, ok := sessionByTask[t.ID]; ok {
					detail = fmt.Sprintf("pane %d, session %s", s.Pane, truncate(s.ID, 12))
				}
			case core.TaskFailed, core.TaskPaused:
				if t.ErrorContext != "" {
					detail = truncate(t.ErrorContext, detailWidth)
				}
				if t.RetryCount > 0 {
					detail = fmt.Sprintf("retry %d; %s", t.RetryCount, detail)
				}
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Kind, truncate(t.Name, 40), t.Status, detail)
		}
		_ = w.Flush()
		fmt.Println()
	}

	if len(pending) > 0 {
		fmt.Println("WAITING FOR INPUT")
		for _, q := range pending {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", q.ID, truncate(q.Question, detailWidth))
		}
		_ = w.Flush()
		fmt.Printf("  Use 'tc respond <request-id> <answer>' to unblock\n\n")
	}

	if snap.Project.Status == core.ProjectPaused {
		fmt.Println("Project is paused. Use 'tc resume' to continue.")
	}
}

// truncate shortens s to maxLen runes with a trailing ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
