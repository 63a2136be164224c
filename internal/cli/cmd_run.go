package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/tc/internal/dashboard"
	"github.com/randalmurphal/tc/internal/engine"
	"github.com/randalmurphal/tc/internal/events"
	"github.com/randalmurphal/tc/internal/panes"
)

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestration engine",
		Long: `Start the reconciliation engine for this project.

The engine owns the two tmux panes: coding tasks run on pane 0,
reviews on pane 1. Each tick it reaps finished sessions, applies the
retry policy, asks the scheduler for the next task, and dispatches it
with a rendered brief. It stops when the plan completes, deadlocks, or
the process is interrupted; interrupting leaves running sessions alive
for the next run to reap.

On a terminal the live dashboard attaches automatically; quitting it
stops the engine. --headless (or a non-tty stdout) logs to stderr
instead.

Examples:
  tc run
  tc run --headless`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, cfg, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			interactive := !headless && isatty.IsTerminal(os.Stdout.Fd())

			// The dashboard owns the terminal; engine logs go to a file
			// so they do not tear the UI.
			logger := newLogger(nil)
			if interactive {
				logPath := filepath.Join(h.Paths.LogsDir(), "engine.log")
				if f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
					defer func() { _ = f.Close() }()
					logger = newLogger(f)
				}
			}

			bus := events.NewBus(events.WithBufferSize(cfg.EventBuffer))
			defer bus.Close()

			runner := panes.NewTmux(h.Project.Name, h.Paths.Root, cfg.KillGrace(), logger)
			eng := engine.New(engine.Config{
				Store:    h.Store,
				Runner:   runner,
				Bus:      bus,
				Settings: cfg,
				Logger:   logger,
				Project:  h.Project,
				Paths:    h.Paths,
			})

			if !quiet {
				fmt.Printf("Starting orchestration for %q\n", h.Project.Name)
				fmt.Printf("  tmux session: %s\n", runner.SessionName())
				fmt.Printf("  attach: tmux attach -t %s\n\n", runner.SessionName())
			}

			ctx, cancel := SetupSignalHandler()
			defer cancel()

			if !interactive {
				return eng.Run(ctx)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				return eng.Run(gctx)
			})
			g.Go(func() error {
				defer cancel()
				return dashboard.Run(gctx, dashboard.Config{
					Store:     h.Store,
					Paths:     h.Paths,
					ProjectID: h.Project.ID,
				})
			})
			if err := g.Wait(); err != nil {
				return err
			}

			proj, perr := h.Store.GetProject(cmd.Context(), h.Project.ID)
			if perr == nil && !quiet {
				fmt.Printf("Engine stopped; project is %s.\n", proj.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "run without the dashboard")
	return cmd
}
