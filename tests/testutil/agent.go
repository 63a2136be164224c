package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/panes"
)

// Behavior is one scripted session: what the stand-in Agent does after
// the engine spawns it for a task. Behaviors run on their own goroutine,
// so they report problems with t.Errorf instead of require.
type Behavior func(p *Project, sess core.Session)

// Script maps task names to the behaviors of their successive sessions.
// A task spawned more times than it has behaviors repeats the last one;
// a task with no entry completes (coding) or approves (review) so
// scenarios only script the interesting tasks.
type Script map[string][]Behavior

// ScriptAgent installs the script on the fake runner. Each spawn
// resolves its session and task, picks the behavior for that attempt,
// and runs it asynchronously, like a real Agent process would.
func (p *Project) ScriptAgent(script Script) {
	var mu sync.Mutex
	attempt := make(map[string]int)

	p.Runner.OnSpawn = func(spec panes.SpawnSpec) error {
		go func() {
			ctx := context.Background()

			// Let Spawn finish its own bookkeeping before the script
			// frees the pane again.
			deadline := time.Now().Add(waitFor)
			for {
				busy, _ := p.Runner.Busy(ctx, spec.Pane)
				if busy || time.Now().After(deadline) {
					break
				}
				time.Sleep(time.Millisecond)
			}

			sess, err := p.Store.GetSession(ctx, spec.SessionID)
			if err != nil {
				p.T.Errorf("script: resolve session %s: %v", spec.SessionID, err)
				return
			}
			task, err := p.Store.GetTask(ctx, sess.TaskID)
			if err != nil {
				p.T.Errorf("script: resolve task %s: %v", sess.TaskID, err)
				return
			}

			mu.Lock()
			behaviors := script[task.Name]
			n := attempt[task.Name]
			attempt[task.Name]++
			mu.Unlock()

			var b Behavior
			switch {
			case len(behaviors) == 0:
				if task.Kind == core.KindReview {
					b = ApproveReview()
				} else {
					b = ReportCompletion("done: " + task.Name)
				}
			case n < len(behaviors):
				b = behaviors[n]
			default:
				b = behaviors[len(behaviors)-1]
			}
			b(p, sess)
		}()
		return nil
	}
}

// ReportCompletion reports success over the control plane, leaves a
// clean result file, and frees the pane.
func ReportCompletion(summary string) Behavior {
	return func(p *Project, sess core.Session) {
		p.agentRPC(sess, "report_completion", map[string]any{
			"session_token": sess.ID,
			"task_id":       sess.TaskID,
			"summary":       summary,
			"files_changed": []string{"main.go"},
		})
		p.exitSession(sess, 0)
	}
}

// ReportFailure reports failure with the given error context; the
// session exits nonzero afterwards, as a failing run does.
func ReportFailure(message, context string) Behavior {
	return func(p *Project, sess core.Session) {
		p.agentRPC(sess, "report_failure", map[string]any{
			"session_token": sess.ID,
			"task_id":       sess.TaskID,
			"message":       message,
			"context":       context,
		})
		p.exitSession(sess, 1)
	}
}

// ApproveReview reports an approving review verdict.
func ApproveReview() Behavior {
	return func(p *Project, sess core.Session) {
		p.agentRPC(sess, "report_review", map[string]any{
			"session_token": sess.ID,
			"task_id":       sess.TaskID,
			"verdict":       string(core.VerdictApproved),
		})
		p.exitSession(sess, 0)
	}
}

// RequestChanges reports a changes_requested verdict with findings.
func RequestChanges(findings ...string) Behavior {
	return func(p *Project, sess core.Session) {
		p.agentRPC(sess, "report_review", map[string]any{
			"session_token": sess.ID,
			"task_id":       sess.TaskID,
			"verdict":       string(core.VerdictChangesRequested),
			"findings":      findings,
		})
		p.exitSession(sess, 0)
	}
}

// ExitSilently dies with the given code without reporting anything, the
// way a crashed Agent does.
func ExitSilently(code int) Behavior {
	return func(p *Project, sess core.Session) {
		p.exitSession(sess, code)
	}
}

// Hang never reports and never exits; the session stays running until
// something kills it.
func Hang() Behavior {
	return func(p *Project, sess core.Session) {}
}

// agentRPC is the goroutine-safe control-plane call used by behaviors.
func (p *Project) agentRPC(sess core.Session, method string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		p.T.Errorf("script: marshal %s: %v", method, err)
		return
	}
	url := p.Engine.Endpoint() + "/rpc/" + method
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		p.T.Errorf("script: POST %s: %v", url, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		p.T.Errorf("script: %s for session %s returned %d: %v", method, sess.ID, resp.StatusCode, apiErr)
	}
}

// exitSession drops the result file and frees the pane.
func (p *Project) exitSession(sess core.Session, code int) {
	path := p.Paths.SessionResultPath(sess.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.T.Errorf("script: mkdir result dir: %v", err)
		return
	}
	data := fmt.Sprintf(`{"session_id":%q,"exit_code":%d}`, sess.ID, code)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		p.T.Errorf("script: write result: %v", err)
		return
	}
	p.Runner.FinishPane(sess.Pane)
}
