package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/events"
	"github.com/randalmurphal/tc/internal/retry"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return tcerrors.ErrInvalidArgument("malformed request body").WithCause(err)
	}
	return nil
}

// authorizeTx resolves the task and checks the caller's token against
// its running session. The token is the session id the engine injected
// into the brief, so only the Agent currently bound to the task passes.
func authorizeTx(tx *db.TxOps, taskID, token string) (core.Task, core.Session, error) {
	if taskID == "" {
		return core.Task{}, core.Session{}, tcerrors.ErrInvalidArgument("task_id is required")
	}
	t, err := db.TaskByIDTx(tx, taskID)
	if err != nil {
		return core.Task{}, core.Session{}, err
	}
	sess, ok, err := db.RunningSessionForTaskTx(tx, taskID)
	if err != nil {
		return core.Task{}, core.Session{}, err
	}
	if !ok {
		return core.Task{}, core.Session{}, tcerrors.ErrTaskNotRunning(taskID, string(t.Status))
	}
	if token == "" || token != sess.ID {
		return core.Task{}, core.Session{}, tcerrors.ErrBadSessionToken(taskID)
	}
	if t.Status != core.TaskRunning {
		// Session still open but the task already reported a terminal
		// state; a second report must not mutate anything.
		return core.Task{}, core.Session{}, tcerrors.ErrTaskNotRunning(taskID, string(t.Status))
	}
	return t, sess, nil
}

type reportProgressRequest struct {
	SessionToken string `json:"session_token"`
	TaskID       string `json:"task_id"`
	Percent      *int   `json:"percent,omitempty"`
	Note         string `json:"note"`
}

func (s *Server) handleReportProgress(w http.ResponseWriter, r *http.Request) {
	var req reportProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if req.Percent != nil && (*req.Percent < 0 || *req.Percent > 100) {
		HandleError(w, tcerrors.ErrInvalidArgument(fmt.Sprintf("percent %d out of range", *req.Percent)))
		return
	}

	err := s.store.RunInTx(r.Context(), func(tx *db.TxOps) error {
		if _, _, err := authorizeTx(tx, req.TaskID, req.SessionToken); err != nil {
			return err
		}
		ev := core.NewEvent(core.EventProgress, req.TaskID, core.MarshalPayload(core.ProgressPayload{
			Percent: req.Percent,
			Note:    req.Note,
		}))
		_, err := db.AppendEventTx(tx, ev)
		return err
	})
	if err != nil {
		HandleError(w, err)
		return
	}
	s.notify()
	JSONResponse(w, map[string]string{"status": "recorded"})
}

type reportCompletionRequest struct {
	SessionToken string   `json:"session_token"`
	TaskID       string   `json:"task_id"`
	Summary      string   `json:"summary"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

func (s *Server) handleReportCompletion(w http.ResponseWriter, r *http.Request) {
	var req reportCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	var reviewID string
	err := s.store.RunInTx(r.Context(), func(tx *db.TxOps) error {
		t, _, err := authorizeTx(tx, req.TaskID, req.SessionToken)
		if err != nil {
			return err
		}
		if t.Kind != core.KindCoding {
			return tcerrors.ErrWrongTaskKind(t.ID, string(t.Kind), string(core.KindCoding))
		}

		if err := db.UpdateTaskStatusTx(tx, t.ID, db.StatusChange{
			To:     core.TaskCompleted,
			Reason: "completion reported",
			Completion: &core.CompletionPayload{
				Summary:      req.Summary,
				FilesChanged: req.FilesChanged,
			},
		}); err != nil {
			return err
		}

		// Queue the paired review at the phase tail so it runs after
		// everything already planned there.
		seq, err := db.NextTaskSequenceTx(tx, t.PhaseID)
		if err != nil {
			return err
		}
		reviewID = uuid.NewString()
		review, err := core.NewTask(reviewID, t.PhaseID, seq, core.KindReview, "Review: "+t.Name)
		if err != nil {
			return err
		}
		review.Description = "Code review of the changes made for: " + t.Name
		if err := db.InsertTaskTx(tx, review); err != nil {
			return err
		}
		if err := db.InsertDependencyTx(tx, core.Dependency{TaskID: reviewID, DependsOn: t.ID}); err != nil {
			return err
		}
		// The new pending task reopens the phase if the transition above
		// closed it.
		return db.ReconcilePhaseTx(tx, t.PhaseID)
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	s.notify()
	s.logger.Info("completion reported", "task", req.TaskID, "review_task", reviewID)
	JSONResponse(w, map[string]string{"status": "completed", "review_task_id": reviewID})
}

type reportFailureRequest struct {
	SessionToken string `json:"session_token"`
	TaskID       string `json:"task_id"`
	Message      string `json:"message"`
	Context      string `json:"context,omitempty"`
}

func (s *Server) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	var req reportFailureRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if req.Message == "" {
		HandleError(w, tcerrors.ErrInvalidArgument("message is required"))
		return
	}

	errCtx := req.Message
	if req.Context != "" {
		errCtx += "\n" + req.Context
	}
	errCtx = retry.Clamp(errCtx)

	err := s.store.RunInTx(r.Context(), func(tx *db.TxOps) error {
		t, _, err := authorizeTx(tx, req.TaskID, req.SessionToken)
		if err != nil {
			return err
		}
		if err := db.UpdateTaskStatusTx(tx, t.ID, db.StatusChange{
			To:           core.TaskFailed,
			ErrorContext: &errCtx,
			Reason:       "failure reported",
		}); err != nil {
			return err
		}
		ev := core.NewEvent(core.EventError, t.ID, core.MarshalPayload(core.ErrorPayload{
			Message: retry.Clamp(req.Message),
			Context: retry.Clamp(req.Context),
		}))
		_, err = db.AppendEventTx(tx, ev)
		return err
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	// The session stays open; the reaper closes it when the process
	// actually exits, and the retry policy runs on the next tick.
	s.notify()
	s.logger.Info("failure reported", "task", req.TaskID)
	JSONResponse(w, map[string]string{"status": "failed"})
}

type reportReviewRequest struct {
	SessionToken string   `json:"session_token"`
	TaskID       string   `json:"task_id"`
	Verdict      string   `json:"verdict"`
	Findings     []string `json:"findings,omitempty"`
}

func (s *Server) handleReportReview(w http.ResponseWriter, r *http.Request) {
	var req reportReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	verdict := core.ReviewVerdict(req.Verdict)
	if verdict != core.VerdictApproved && verdict != core.VerdictChangesRequested {
		HandleError(w, tcerrors.ErrInvalidArgument(fmt.Sprintf("verdict must be %q or %q", core.VerdictApproved, core.VerdictChangesRequested)))
		return
	}
	if verdict == core.VerdictChangesRequested && len(req.Findings) == 0 {
		HandleError(w, tcerrors.ErrInvalidArgument("changes_requested requires findings"))
		return
	}

	var followUpID string
	err := s.store.RunInTx(r.Context(), func(tx *db.TxOps) error {
		t, _, err := authorizeTx(tx, req.TaskID, req.SessionToken)
		if err != nil {
			return err
		}
		if t.Kind != core.KindReview {
			return tcerrors.ErrWrongTaskKind(t.ID, string(t.Kind), string(core.KindReview))
		}

		// The review's dependency edge points at the task it reviewed.
		deps, err := db.DependenciesOfTx(tx, t.ID)
		if err != nil {
			return err
		}
		var reviewedID string
		if len(deps) > 0 {
			reviewedID = deps[0]
		}

		if err := db.UpdateTaskStatusTx(tx, t.ID, db.StatusChange{
			To:     core.TaskCompleted,
			Reason: "review " + string(verdict),
		}); err != nil {
			return err
		}

		if verdict == core.VerdictChangesRequested {
			sourceName := strings.TrimPrefix(t.Name, "Review: ")
			dependsOn := reviewedID
			if dependsOn == "" {
				dependsOn = t.ID
			}
			if reviewedID != "" {
				if reviewed, err := db.TaskByIDTx(tx, reviewedID); err == nil {
					sourceName = reviewed.Name
				}
			}

			seq, err := db.NextTaskSequenceTx(tx, t.PhaseID)
			if err != nil {
				return err
			}
			followUpID = uuid.NewString()
			followUp, err := core.NewTask(followUpID, t.PhaseID, seq, core.KindCoding, "Address review: "+sourceName)
			if err != nil {
				return err
			}
			var b strings.Builder
			b.WriteString("Address the review findings for \"" + sourceName + "\":\n")
			for _, f := range req.Findings {
				b.WriteString("- " + f + "\n")
			}
			followUp.Description = b.String()
			if err := db.InsertTaskTx(tx, followUp); err != nil {
				return err
			}
			if err := db.InsertDependencyTx(tx, core.Dependency{TaskID: followUpID, DependsOn: dependsOn}); err != nil {
				return err
			}
		}

		ev := core.NewEvent(core.EventReviewVerdict, t.ID, core.MarshalPayload(core.ReviewVerdictPayload{
			Verdict:    verdict,
			Findings:   req.Findings,
			ReviewedID: reviewedID,
			FollowUpID: followUpID,
		}))
		if _, err := db.AppendEventTx(tx, ev); err != nil {
			return err
		}
		return db.ReconcilePhaseTx(tx, t.PhaseID)
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	s.notify()
	s.logger.Info("review reported", "task", req.TaskID, "verdict", req.Verdict, "follow_up", followUpID)
	resp := map[string]string{"status": "completed", "verdict": req.Verdict}
	if followUpID != "" {
		resp["follow_up_task_id"] = followUpID
	}
	JSONResponse(w, resp)
}

type humanInputRequest struct {
	SessionToken string   `json:"session_token,omitempty"`
	TaskID       string   `json:"task_id,omitempty"`
	Question     string   `json:"question"`
	Choices      []string `json:"choices,omitempty"`
}

func (s *Server) handleRequestHumanInput(w http.ResponseWriter, r *http.Request) {
	var req humanInputRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		HandleError(w, tcerrors.ErrInvalidArgument("question is required"))
		return
	}

	// Subscribe before persisting so the answer cannot slip between the
	// insert and the wait.
	var sub *events.Subscription
	if s.bus != nil {
		sub = s.bus.Subscribe(events.Filter{Kinds: []core.EventKind{core.EventHumanInputResponse}})
		defer sub.Close()
	}

	id := uuid.NewString()
	in := db.HumanInput{
		ID:       id,
		TaskID:   req.TaskID,
		Question: req.Question,
		Choices:  req.Choices,
	}
	if err := s.store.CreateHumanInput(r.Context(), in); err != nil {
		HandleError(w, err)
		return
	}
	s.notify()
	s.logger.Info("human input requested", "request", id, "task", req.TaskID)

	answer, err := s.awaitAnswer(r, sub, id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]string{"request_id": id, "response": answer})
}

// awaitAnswer blocks until the request is answered, the input timeout
// elapses, or the caller disconnects. The bus wakes us promptly; the
// poll ticker covers bus drops.
func (s *Server) awaitAnswer(r *http.Request, sub *events.Subscription, requestID string) (string, error) {
	timeout := time.Duration(s.settings.InputTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultInputTimeoutSecs) * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	var busC <-chan core.Event
	if sub != nil {
		busC = sub.C()
	}

	for {
		select {
		case ev, ok := <-busC:
			if !ok {
				// Bus shut down mid-wait; the poll ticker takes over.
				busC = nil
				continue
			}
			if ev.Kind != core.EventHumanInputResponse {
				continue
			}
			var p core.HumanInputResponsePayload
			if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
				continue
			}
			if p.RequestID == requestID {
				return p.Response, nil
			}
		case <-poll.C:
			in, err := s.store.GetHumanInput(r.Context(), requestID)
			if err != nil {
				continue
			}
			if in.Response != nil {
				return *in.Response, nil
			}
		case <-timer.C:
			return "", tcerrors.ErrInputTimedOut(requestID)
		case <-r.Context().Done():
			return "", r.Context().Err()
		}
	}
}
