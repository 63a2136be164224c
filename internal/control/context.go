package control

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

const contextEventLimit = 50

type getContextRequest struct {
	SessionToken string   `json:"session_token"`
	TaskID       string   `json:"task_id,omitempty"`
	Include      []string `json:"include,omitempty"`
}

type contextTask struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

type contextPhase struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Status   string `json:"status"`
}

type contextEvent struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type getContextResponse struct {
	Task           *contextTask   `json:"task,omitempty"`
	CurrentPhase   *contextPhase  `json:"current_phase,omitempty"`
	CompletedTasks []contextTask  `json:"completed_tasks,omitempty"`
	ReviewFindings []string       `json:"review_findings,omitempty"`
	Brief          string         `json:"brief,omitempty"`
	Files          []string       `json:"files,omitempty"`
	Events         []contextEvent `json:"events,omitempty"`
}

// handleGetContext serves project state back to a running Agent. It is
// strictly read-only: no precondition beyond a valid token, and nothing
// in the store changes.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	var req getContextRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	ctx := r.Context()

	// The token only has to belong to some live session; context reads
	// are allowed even after the caller's own task left running (e.g. a
	// review agent peeking right after its verdict landed).
	running, err := s.store.RunningSessions(ctx)
	if err != nil {
		HandleError(w, err)
		return
	}
	authorized := false
	for _, sess := range running {
		if req.SessionToken != "" && req.SessionToken == sess.ID {
			authorized = true
			break
		}
	}
	if !authorized {
		HandleError(w, tcerrors.ErrBadSessionToken(req.TaskID))
		return
	}

	want := func(section string) bool {
		if len(req.Include) == 0 {
			return true
		}
		for _, inc := range req.Include {
			if inc == section {
				return true
			}
		}
		return false
	}

	snap, err := s.store.Snapshot(ctx, s.projectID)
	if err != nil {
		HandleError(w, err)
		return
	}

	resp := getContextResponse{}

	if req.TaskID != "" {
		task, ok := snap.TaskByID(req.TaskID)
		if !ok {
			HandleError(w, tcerrors.ErrTaskNotFound(req.TaskID))
			return
		}
		resp.Task = &contextTask{
			ID:     task.ID,
			Name:   task.Name,
			Kind:   string(task.Kind),
			Status: string(task.Status),
		}
		if want("current_phase") {
			if ph, ok := snap.PhaseByID(task.PhaseID); ok {
				resp.CurrentPhase = &contextPhase{
					ID:       ph.ID,
					Name:     ph.Name,
					Sequence: ph.Sequence,
					Status:   string(ph.Status),
				}
			}
		}
		if want("brief") && task.BriefPath != "" {
			if data, err := os.ReadFile(task.BriefPath); err == nil {
				resp.Brief = string(data)
			}
		}
		if want("review_findings") {
			findings, err := s.store.ReviewFindingsFor(ctx, task.ID)
			if err == nil {
				resp.ReviewFindings = findings
			}
		}
	}

	if want("completed_tasks") {
		for _, t := range snap.Tasks {
			if t.Status != core.TaskCompleted {
				continue
			}
			ct := contextTask{
				ID:     t.ID,
				Name:   t.Name,
				Kind:   string(t.Kind),
				Status: string(t.Status),
			}
			if comp, err := s.store.TaskCompletion(ctx, t.ID); err == nil && comp != nil {
				ct.Summary = comp.Summary
			}
			resp.CompletedTasks = append(resp.CompletedTasks, ct)
		}
	}

	if want("files") {
		resp.Files = s.fileManifest(snap)
	}

	if want("events") {
		subject := req.TaskID
		evs, err := s.store.ReadEvents(ctx, db.EventQuery{Subject: subject, Limit: contextEventLimit})
		if err == nil {
			for _, ev := range evs {
				resp.Events = append(resp.Events, contextEvent{
					ID:      ev.ID,
					Kind:    string(ev.Kind),
					Subject: ev.Subject,
					Payload: ev.Payload,
				})
			}
		}
	}

	JSONResponse(w, resp)
}

// fileManifest collects every files_changed entry reported by completed
// tasks. Glob patterns are expanded against the project directory;
// plain paths pass through as-is.
func (s *Server) fileManifest(snap *core.Snapshot) []string {
	seen := make(map[string]struct{})
	ctx := context.Background()
	for _, t := range snap.Tasks {
		if t.Status != core.TaskCompleted {
			continue
		}
		comp, err := s.store.TaskCompletion(ctx, t.ID)
		if err != nil || comp == nil {
			continue
		}
		for _, f := range comp.FilesChanged {
			if !strings.ContainsAny(f, "*?[{") {
				seen[f] = struct{}{}
				continue
			}
			matches, err := doublestar.FilepathGlob(filepath.Join(s.projectDir, f))
			if err != nil {
				seen[f] = struct{}{}
				continue
			}
			for _, m := range matches {
				if rel, err := filepath.Rel(s.projectDir, m); err == nil {
					seen[rel] = struct{}{}
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
