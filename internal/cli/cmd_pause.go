package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/core"
)

// newPauseCmd creates the pause command
func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause orchestration",
		Long: `Pause the project. A running engine stops dispatching coding
tasks on its next tick; in-flight sessions and reviews keep going.
Pausing an already-paused project is a no-op.

Examples:
  tc pause`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if err := h.Store.UpdateProjectStatus(ctx, h.Project.ID, core.ProjectPaused, "paused by operator"); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Project %q paused. Running sessions will finish; nothing new starts.\n", h.Project.Name)
			}
			return nil
		},
	}
}
