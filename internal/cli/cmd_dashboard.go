package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/dashboard"
)

// newDashboardCmd creates the dashboard command
func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"dash"},
		Short:   "Open the live dashboard",
		Long: `Open the terminal dashboard against the current project. It tails
the event stream from a running engine when one is up and falls back
to polling the store otherwise, so it works alongside 'tc run
--headless' or after the fact.

The dashboard never writes: pending questions are shown with the
'tc respond' invocation that answers them. Keys: up/down scroll the
event feed, a follows the tail again, q quits.

Examples:
  tc dashboard`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := requireProject(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			ctx, cancel := SetupSignalHandler()
			defer cancel()

			return dashboard.Run(ctx, dashboard.Config{
				Store:     h.Store,
				Paths:     h.Paths,
				ProjectID: h.Project.ID,
			})
		},
	}
}
