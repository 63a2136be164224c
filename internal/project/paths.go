// Package project owns the on-disk layout of an orchestrated directory
// and the initialization that creates it: the .tc/ data directory, the
// store, copied prd/bootstrap inputs, and the Agent's .mcp.json.
package project

import (
	"fmt"
	"path/filepath"

	"github.com/randalmurphal/tc/internal/db"
)

// Well-known files at the project root.
const (
	PRDFile       = "prd.md"
	BootstrapFile = "bootstrap.md"
	StandardsFile = "CLAUDE.md"
	MCPConfigFile = ".mcp.json"
	RunFile       = "run.yaml"
)

// Paths resolves every location the orchestrator touches under one
// project directory.
type Paths struct {
	Root string
}

// NewPaths builds the path set for a project root. The root is made
// absolute so briefs and .mcp.json carry usable paths into Agent
// sessions.
func NewPaths(root string) (Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve project dir %s: %w", root, err)
	}
	return Paths{Root: abs}, nil
}

// DataDir is <root>/.tc, the runtime state directory.
func (p Paths) DataDir() string { return filepath.Join(p.Root, db.StoreDir) }

// DBPath is the embedded store file.
func (p Paths) DBPath() string { return db.StorePath(p.Root) }

// BriefsDir holds rendered task prompts.
func (p Paths) BriefsDir() string { return filepath.Join(p.DataDir(), "briefs") }

// LogsDir holds per-session transcripts and result files.
func (p Paths) LogsDir() string { return filepath.Join(p.DataDir(), "logs") }

// PlansDir holds raw planning output, one file per planner run.
func (p Paths) PlansDir() string { return filepath.Join(p.DataDir(), "plans") }

// SessionLogPath is the transcript tee'd from a session's pane.
func (p Paths) SessionLogPath(sessionID string) string {
	return filepath.Join(p.LogsDir(), "session-"+sessionID+".log")
}

// SessionResultPath is the JSON file a finished session leaves for the
// reaper.
func (p Paths) SessionResultPath(sessionID string) string {
	return filepath.Join(p.LogsDir(), "session-"+sessionID+"-result.json")
}

// PlanPath names a raw plan capture by timestamp.
func (p Paths) PlanPath(stamp string) string {
	return filepath.Join(p.PlansDir(), "plan-"+stamp+".json")
}

// RunFilePath is the engine's liveness marker, present only while an
// engine owns this project.
func (p Paths) RunFilePath() string { return filepath.Join(p.DataDir(), RunFile) }

// PRDPath is the product requirements document at the project root.
func (p Paths) PRDPath() string { return filepath.Join(p.Root, PRDFile) }

// BootstrapPath is the environment contract at the project root.
func (p Paths) BootstrapPath() string { return filepath.Join(p.Root, BootstrapFile) }

// StandardsPath is the generated agent standards file.
func (p Paths) StandardsPath() string { return filepath.Join(p.Root, StandardsFile) }

// MCPConfigPath is the Agent-side control-plane pointer.
func (p Paths) MCPConfigPath() string { return filepath.Join(p.Root, MCPConfigFile) }

// ConfigPath is the optional per-project settings file.
func (p Paths) ConfigPath() string { return filepath.Join(p.DataDir(), "config.yaml") }
