package panes

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Result is what a finished session leaves on disk for the engine to
// reap.
type Result struct {
	SessionID string `json:"session_id"`
	ExitCode  int    `json:"exit_code"`
}

// BuildCommand renders the shell line sent to a pane. The subshell
// captures the agent's own exit status before tee consumes the
// pipeline, the result file is what the engine reaps, and the trailing
// echo keeps the pane readable for a human watching it.
func BuildCommand(spec SpawnSpec) string {
	ecPath := spec.ResultPath + ".ec"
	var b strings.Builder
	fmt.Fprintf(&b, "( %s -p --output-format text --project-dir %s < %s; echo $? > %s ) 2>&1 | tee %s",
		shQuote(spec.AgentBin),
		shQuote(spec.ProjectDir),
		shQuote(spec.BriefPath),
		shQuote(ecPath),
		shQuote(spec.LogPath),
	)
	fmt.Fprintf(&b, "; ec=$(cat %s 2>/dev/null || echo 1); rm -f %s", shQuote(ecPath), shQuote(ecPath))
	fmt.Fprintf(&b, "; printf '{\"session_id\":\"%s\",\"exit_code\":%%s}' \"$ec\" > %s", spec.SessionID, shQuote(spec.ResultPath))
	b.WriteString("; echo \"exit code: $ec\"")
	return b.String()
}

// shQuote single-quotes s for POSIX sh.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ReadResult loads a session result file. A missing file means the
// session has not finished; the caller checks with os.IsNotExist.
func ReadResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("parse session result %s: %w", path, err)
	}
	return r, nil
}

// ParseExitCode scans captured pane output for the trailing
// "exit code: N" line. Fallback for sessions whose result file never
// appeared.
func ParseExitCode(output string) (int, bool) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		rest, ok := strings.CutPrefix(line, "exit code:")
		if !ok {
			continue
		}
		code, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			continue
		}
		return code, true
	}
	return 0, false
}
