package cli

import (
	"testing"

	"github.com/spf13/cobra"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{
		"init", "verify", "plan", "run", "status", "pause", "resume",
		"retry", "reset", "kill", "history", "dashboard", "respond", "version",
	}

	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}

	for _, name := range want {
		if !have[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	pf := rootCmd.PersistentFlags()

	f := pf.Lookup("project-dir")
	if f == nil {
		t.Fatal("missing --project-dir flag")
	}
	if f.Shorthand != "C" {
		t.Errorf("project-dir shorthand = %q, want 'C'", f.Shorthand)
	}
	if f.DefValue != "." {
		t.Errorf("project-dir default = %q, want '.'", f.DefValue)
	}

	for _, name := range []string{"verbose", "quiet", "json"} {
		if pf.Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestExactArgs_ReturnsValidationError(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}

	if err := exactArgs(1)(cmd, []string{"one"}); err != nil {
		t.Errorf("unexpected error for matching arg count: %v", err)
	}

	err := exactArgs(1)(cmd, []string{"one", "two"})
	if err == nil {
		t.Fatal("expected error for wrong arg count")
	}
	tcErr := tcerrors.AsTCError(err)
	if tcErr == nil {
		t.Fatalf("error is not a TCError: %v", err)
	}
	if got := tcErr.ExitCode(); got != 2 {
		t.Errorf("exit code = %d, want 2", got)
	}
}

func TestNoArgs_ReturnsValidationError(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}

	if err := noArgs(cmd, nil); err != nil {
		t.Errorf("unexpected error for zero args: %v", err)
	}

	err := noArgs(cmd, []string{"stray"})
	if err == nil {
		t.Fatal("expected error for stray positional arg")
	}
	tcErr := tcerrors.AsTCError(err)
	if tcErr == nil {
		t.Fatalf("error is not a TCError: %v", err)
	}
	if got := tcErr.ExitCode(); got != 2 {
		t.Errorf("exit code = %d, want 2", got)
	}
}

func TestResolveDir_Absolute(t *testing.T) {
	oldDir := projectDir
	defer func() { projectDir = oldDir }()

	projectDir = t.TempDir()
	dir, err := resolveDir()
	if err != nil {
		t.Fatalf("resolveDir() error = %v", err)
	}
	if dir != projectDir {
		t.Errorf("resolveDir() = %q, want %q", dir, projectDir)
	}

	// Empty falls back to the current directory.
	projectDir = ""
	dir, err = resolveDir()
	if err != nil {
		t.Fatalf("resolveDir() error = %v", err)
	}
	if dir == "" {
		t.Error("resolveDir() returned empty path for default directory")
	}
}
