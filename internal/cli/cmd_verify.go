package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/bootstrap"
)

// newVerifyCmd creates the verify command
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the project environment",
		Long: `Run the bootstrap checks against this environment.

Checks come from bootstrap.md: tool rows from its install table,
credential probes from its Verify lines, and variables from its .env
section. The agent binary, tmux, and git are always checked.

Results are recorded in the store; a failing required check exits
nonzero so CI can gate on it.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, cfg, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			v := bootstrap.New(bootstrap.Config{
				Store:    h.Store,
				Settings: cfg,
				Logger:   newLogger(nil),
				Project:  h.Project,
				Paths:    h.Paths,
			})
			report, err := v.Verify(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				if err := printJSON(report.Results); err != nil {
					return err
				}
				return report.Err()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tKIND\tCHECK\tDETAIL")
			for _, res := range report.Results {
				status := "ok"
				detail := ""
				if !res.OK {
					status = "FAIL"
					detail = firstLine(res.Output)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status, res.Kind, res.Name, detail)
			}
			_ = w.Flush()

			fmt.Printf("\n%d/%d checks passed\n", report.Passed(), report.Total())
			return report.Err()
		},
	}
}

// firstLine trims output to its first line for table rendering.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
