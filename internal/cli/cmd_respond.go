package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// newRespondCmd creates the respond command
func newRespondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond [request-id] [answer...]",
		Short: "Answer a pending question from the Agent",
		Long: `Answer a question the Agent asked through request_human_input.
With no arguments, lists pending questions. The blocked session picks
the answer up on its next poll.

Examples:
  tc respond
  tc respond 0199abc "yes, use postgres"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if len(args) == 0 {
				pending, err := h.Store.PendingHumanInputs(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("No pending questions.")
					return nil
				}
				if jsonOut {
					return printJSON(pending)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				for _, q := range pending {
					choices := ""
					if len(q.Choices) > 0 {
						choices = "[" + strings.Join(q.Choices, " | ") + "]"
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", q.ID, truncate(q.Question, 60), choices)
				}
				_ = w.Flush()
				fmt.Println("\nAnswer with: tc respond <request-id> <answer>")
				return nil
			}

			if len(args) < 2 {
				return tcerrors.ErrInvalidArgument("usage: tc respond <request-id> <answer>")
			}
			id := args[0]
			answer := strings.Join(args[1:], " ")

			if err := h.Store.AnswerHumanInput(ctx, id, answer); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Answered %s.\n", id)
			}
			return nil
		},
	}
	return cmd
}
