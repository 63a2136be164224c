package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
	"github.com/randalmurphal/tc/internal/util"
)

// RunInfo is the engine's liveness marker at .tc/run.yaml. Its presence
// with a live PID means an engine owns this project; other commands
// read it to find the control endpoint.
type RunInfo struct {
	PID       int       `yaml:"pid"`
	Endpoint  string    `yaml:"endpoint"`
	Session   string    `yaml:"tmux_session,omitempty"`
	StartedAt time.Time `yaml:"started_at"`
}

// ReadRunInfo loads .tc/run.yaml. os.IsNotExist distinguishes "no
// engine" from a parse failure.
func ReadRunInfo(paths project.Paths) (RunInfo, error) {
	data, err := os.ReadFile(paths.RunFilePath())
	if err != nil {
		return RunInfo{}, err
	}
	var info RunInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return RunInfo{}, fmt.Errorf("parse %s: %w", paths.RunFilePath(), err)
	}
	return info, nil
}

// LiveRunInfo returns the run info only if its engine process is still
// alive; a stale file reads as absent.
func LiveRunInfo(paths project.Paths) (RunInfo, bool) {
	info, err := ReadRunInfo(paths)
	if err != nil {
		return RunInfo{}, false
	}
	if !processExists(info.PID) {
		return RunInfo{}, false
	}
	return info, true
}

// acquireRunFile claims the project for this engine. A live run file
// belongs to another engine; a stale one (dead PID) is cleaned up.
func acquireRunFile(paths project.Paths, info RunInfo) error {
	existing, err := ReadRunInfo(paths)
	switch {
	case err == nil:
		if processExists(existing.PID) && existing.PID != os.Getpid() {
			return tcerrors.ErrEngineRunning(existing.PID)
		}
		// Stale marker from a crashed engine.
		_ = os.Remove(paths.RunFilePath())
	case !os.IsNotExist(err):
		return err
	}

	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal run info: %w", err)
	}
	return util.AtomicWriteFile(paths.RunFilePath(), data, 0o644)
}

// releaseRunFile removes the marker. Safe when already gone.
func releaseRunFile(paths project.Paths) {
	_ = os.Remove(paths.RunFilePath())
}

// processExists probes a PID with signal 0. EPERM still means the
// process is there, just not ours to signal.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
