package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/panes"
)

// newKillCmd creates the kill command
func newKillCmd() *cobra.Command {
	var (
		sessionID string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill running Agent sessions",
		Long: `Terminate running Agent sessions. The pane process gets SIGTERM,
then SIGKILL after the grace period; --force skips the grace. The
session is recorded as killed and its task as failed, so the engine's
next tick applies the normal retry policy.

Without --session every running session is killed.

Examples:
  tc kill
  tc kill --session 0199something
  tc kill --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, cfg, err := requireProject(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			grace := cfg.KillGrace()
			if force {
				grace = time.Millisecond
			}
			runner := panes.NewTmux(h.Project.Name, h.Paths.Root, grace, newLogger(nil))

			var targets []core.Session
			if sessionID != "" {
				sess, err := h.Store.GetSession(ctx, sessionID)
				if err != nil {
					return err
				}
				if sess.Status != core.SessionRunning {
					return tcerrors.ErrInvalidTransition("session", sessionID, string(sess.Status), string(core.SessionKilled))
				}
				targets = []core.Session{sess}
			} else {
				targets, err = h.Store.RunningSessions(ctx)
				if err != nil {
					return err
				}
				if len(targets) == 0 {
					if !quiet {
						fmt.Println("No running sessions.")
					}
					return nil
				}
			}

			for _, sess := range targets {
				if err := killSession(cmd, h.Store, runner, sess); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to kill (default: all running)")
	cmd.Flags().BoolVar(&force, "force", false, "skip the grace period")
	return cmd
}

func killSession(cmd *cobra.Command, store *db.Store, runner *panes.Tmux, sess core.Session) error {
	ctx := cmd.Context()

	// Settle the record before touching the process. Once the session
	// row is closed the engine's reaper cannot race us and misread the
	// death as a silent crash.
	err := store.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := db.FinishSessionTx(tx, sess.ID, nil, core.SessionKilled); err != nil {
			return err
		}
		t, err := db.TaskByIDTx(tx, sess.TaskID)
		if err != nil {
			return err
		}
		if t.Status != core.TaskRunning {
			return nil
		}
		killed := "killed"
		return db.UpdateTaskStatusTx(tx, sess.TaskID, db.StatusChange{
			To:           core.TaskFailed,
			ErrorContext: &killed,
			Reason:       "killed by operator",
		})
	})
	if err != nil {
		return err
	}

	// A missing tmux session means the process already died; the record
	// above is still correct.
	if err := runner.Kill(ctx, sess.Pane); err != nil {
		if tcErr := tcerrors.AsTCError(err); tcErr == nil || tcErr.Code != tcerrors.CodePaneUnavailable {
			return err
		}
	}

	if !quiet {
		fmt.Printf("Killed session %s (task %s, pane %d).\n", sess.ID, sess.TaskID, sess.Pane)
	}
	return nil
}
