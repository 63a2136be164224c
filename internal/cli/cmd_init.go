package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	var (
		prdPath       string
		bootstrapPath string
		name          string
	)

	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Initialize a tc project",
		Long: `Initialize a tc project in the given directory.

Creates .tc/ with the state store, copies the PRD (and bootstrap file,
when given) into the project root, and writes the .mcp.json skeleton
that later points agent sessions at the control endpoint.

Examples:
  tc init . --prd prd.md
  tc init ~/work/shop --prd docs/prd.md --bootstrap docs/bootstrap.md --name shop`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prdPath == "" {
				return tcerrors.ErrInvalidArgument("--prd is required")
			}

			res, err := project.Init(cmd.Context(), project.InitOptions{
				Dir:           args[0],
				Name:          name,
				PRDPath:       prdPath,
				BootstrapPath: bootstrapPath,
			}, func(step, status string) {
				if status == "done" && !quiet {
					fmt.Printf("  created %s\n", step)
				}
			})
			if err != nil {
				return err
			}

			fmt.Printf("Initialized project %q (%s)\n", res.Name, res.ProjectID)
			fmt.Printf("  store: %s\n", res.Paths.DBPath())
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  tc verify   Check tools, credentials, and .env")
			fmt.Println("  tc plan     Decompose the PRD into phases and tasks")
			return nil
		},
	}

	cmd.Flags().StringVar(&prdPath, "prd", "", "path to the PRD markdown file (required)")
	cmd.Flags().StringVar(&bootstrapPath, "bootstrap", "", "path to the bootstrap markdown file")
	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory basename)")
	return cmd
}
