package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// newHistoryCmd creates the history command
func newHistoryCmd() *cobra.Command {
	var (
		taskID string
		kind   string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the event log",
		Long: `Show recorded events, newest first. Every status change, dispatch,
completion, failure, and retry lands here, so this is the audit trail
for "what happened while I was away".

Examples:
  tc history
  tc history --task task-3
  tc history --kind task_failed --limit 10
  tc history --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, _, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			q := db.EventQuery{Subject: taskID, Limit: limit}
			if kind != "" {
				k := core.EventKind(kind)
				if !core.IsValidEventKind(k) {
					return tcerrors.ErrInvalidArgument(fmt.Sprintf("unknown event kind %q", kind))
				}
				q.Kinds = []core.EventKind{k}
			}

			events, err := h.Store.ReadEvents(ctx, q)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(events)
			}

			if len(events) == 0 {
				fmt.Println("No events recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, ev := range events {
				subject := ev.Subject
				if subject == "" {
					subject = "-"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					ev.Kind, subject, truncate(ev.Payload, 70))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "only events for this task or subject")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	return cmd
}
