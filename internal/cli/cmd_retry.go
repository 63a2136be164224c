package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/core"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// newRetryCmd creates the retry command
func newRetryCmd() *cobra.Command {
	var taskID string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed or paused task",
		Long: `Queue a failed or paused task to run again. The retry budget and
error context are cleared, so the task gets a fresh automatic retry if
it fails again. If the failure had paused the whole project, retrying
resumes it.

Examples:
  tc retry --task task-3`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return tcerrors.ErrInvalidArgument("--task is required")
			}
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if err := h.Store.RetryTask(ctx, taskID); err != nil {
				return err
			}
			if h.Project.Status == core.ProjectPaused {
				if err := h.Store.UpdateProjectStatus(ctx, h.Project.ID, core.ProjectRunning, "manual retry"); err != nil {
					return err
				}
			}
			if !quiet {
				fmt.Printf("Task %s queued for retry.\n", taskID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task id to retry")
	return cmd
}
