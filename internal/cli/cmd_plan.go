package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/planner"
)

// newPlanCmd creates the plan command
func newPlanCmd() *cobra.Command {
	var (
		replan bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Decompose the PRD into phases and tasks",
		Long: `Invoke the agent's planning mode and install the resulting plan.

The agent reads prd.md (and bootstrap.md when present) and returns a
dependency-ordered plan of phases and tasks, which is validated and
stored. The raw planning output is kept under .tc/plans/ for
inspection.

A second plan requires --replan, which replaces the stored plan
wholesale: completed work is not preserved.

Examples:
  tc plan
  tc plan --replan --reason "phase 2 scope changed"`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, cfg, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if !quiet {
				fmt.Printf("Planning %q with %s (timeout %ds)...\n",
					h.Project.Name, cfg.AgentBin, cfg.PlanTimeoutSecs)
			}

			p := planner.New(planner.Config{
				Store:    h.Store,
				Settings: cfg,
				Logger:   newLogger(nil),
				Project:  h.Project,
				Paths:    h.Paths,
			})
			res, err := p.Plan(ctx, planner.Options{Replan: replan, Reason: reason})
			if err != nil {
				return err
			}

			fmt.Printf("Plan installed: %d phases, %d tasks\n", res.Phases, res.Tasks)
			fmt.Printf("  raw output: %s\n", res.PlanPath)
			if res.StandardsWritten {
				fmt.Println("  CLAUDE.md updated")
			}
			fmt.Println("\nRun 'tc run' to start the engine.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&replan, "replan", false, "replace the existing plan wholesale")
	cmd.Flags().StringVar(&reason, "reason", "", "shown to the agent when replanning")
	return cmd
}
