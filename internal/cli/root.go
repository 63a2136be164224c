// Package cli implements the tc command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

var (
	projectDir string
	verbose    bool
	quiet      bool
	jsonOut    bool

	// commandRan flips once argument parsing succeeded and a command
	// started; errors before that point are argument problems.
	commandRan bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tc",
	Short: "Terminal Coder - autonomous PRD-to-software orchestrator",
	Long: `tc drives an external coding agent through a dependency-ordered plan
of phases and tasks, one coding pane and one review pane at a time.

Workflow:
  tc init . --prd prd.md      Create the project store
  tc verify                   Check tools, credentials, and .env
  tc plan                     Decompose the PRD into phases and tasks
  tc run                      Start the orchestration engine
  tc status                   Show phase and task progress

While the engine runs, the agent reports progress back over a local
control endpoint; 'tc dashboard' watches it live without writing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commandRan = true
	},
}

// Execute runs the CLI and returns the process exit code: 0 success,
// 2 invalid arguments, 3 no project, 4 precondition violation,
// 5 deadlock or fatal task failure, 1 unexpected internal error.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	PrintError(err)
	if tcErr := tcerrors.AsTCError(err); tcErr != nil {
		return tcErr.ExitCode()
	}
	if !commandRan {
		// cobra rejected the command line before any command ran.
		return 2
	}
	return 1
}

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return tcerrors.ErrInvalidArgument(err.Error())
	})

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newKillCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newRespondCmd())
	rootCmd.AddCommand(newVersionCmd())
}
