package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/core"
)

// newResumeCmd creates the resume command
func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused project",
		Long: `Resume a paused project. The engine picks up scheduling on its
next tick; paused tasks stay paused until retried or reset.

Examples:
  tc resume`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if err := h.Store.UpdateProjectStatus(ctx, h.Project.ID, core.ProjectRunning, "resumed by operator"); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Project %q resumed.\n", h.Project.Name)
			}
			return nil
		},
	}
}
