package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/panes"
	"github.com/randalmurphal/tc/internal/project"
)

// newResetCmd creates the reset command
func newResetCmd() *cobra.Command {
	var (
		taskID   string
		phaseSeq int
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a task or phase back to pending",
		Long: `Return a task, or every task in a phase, to pending with a clean
retry budget. Running sessions are recorded as killed and their pane
processes terminated. Resetting a completed task reopens its phase.

Examples:
  tc reset --task task-3
  tc reset --phase 2`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (taskID == "") == (phaseSeq == 0) {
				return tcerrors.ErrInvalidArgument("exactly one of --task or --phase is required")
			}
			ctx := cmd.Context()
			h, cfg, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			runner := panes.NewTmux(h.Project.Name, h.Paths.Root, cfg.KillGrace(), newLogger(nil))

			if taskID != "" {
				panesToKill, err := livePanes(ctx, h, taskID)
				if err != nil {
					return err
				}
				if err := h.Store.ResetTask(ctx, taskID); err != nil {
					return err
				}
				if err := killPanes(ctx, runner, panesToKill); err != nil {
					return err
				}
				if !quiet {
					fmt.Printf("Task %s reset to pending.\n", taskID)
				}
				return nil
			}

			phase, err := h.Store.GetPhaseBySequence(ctx, h.Project.ID, phaseSeq)
			if err != nil {
				return err
			}
			tasks, err := h.Store.ListPhaseTasks(ctx, phase.ID)
			if err != nil {
				return err
			}
			var panesToKill []int
			for _, t := range tasks {
				live, err := livePanes(ctx, h, t.ID)
				if err != nil {
					return err
				}
				panesToKill = append(panesToKill, live...)
			}
			if err := h.Store.ResetPhase(ctx, phase.ID); err != nil {
				return err
			}
			if err := killPanes(ctx, runner, panesToKill); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Phase %d (%s) reset: %d tasks back to pending.\n", phase.Sequence, phase.Name, len(tasks))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task id to reset")
	cmd.Flags().IntVar(&phaseSeq, "phase", 0, "phase number to reset")
	return cmd
}

// livePanes notes which panes a task's running sessions occupy. The
// lookup happens before the reset closes those session rows.
func livePanes(ctx context.Context, h *project.Handle, taskID string) ([]int, error) {
	sess, live, err := h.Store.RunningSessionForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, nil
	}
	return []int{sess.Pane}, nil
}

// killPanes terminates the pane processes left over from reset sessions.
// A missing tmux session means they are already gone.
func killPanes(ctx context.Context, runner *panes.Tmux, targets []int) error {
	for _, pane := range targets {
		if err := runner.Kill(ctx, pane); err != nil {
			if tcErr := tcerrors.AsTCError(err); tcErr != nil && tcErr.Code == tcerrors.CodePaneUnavailable {
				continue
			}
			return err
		}
	}
	return nil
}
