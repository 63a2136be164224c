package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tc/internal/config"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
)

// resolveDir returns the absolute project directory for this invocation.
func resolveDir() (string, error) {
	dir := projectDir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", tcerrors.ErrInvalidArgument(fmt.Sprintf("bad project directory %q: %v", dir, err))
	}
	return abs, nil
}

// requireProject resolves settings and opens the project for the
// current --project-dir. Callers own closing the handle.
func requireProject(ctx context.Context) (*project.Handle, *config.Config, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	h, err := project.Require(ctx, dir, cfg)
	if err != nil {
		return nil, nil, err
	}
	return h, cfg, nil
}

// newLogger builds the CLI's slog logger. Verbose lowers the level to
// Debug; quiet raises it to Error. The writer defaults to stderr.
func newLogger(w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// exactArgs wraps cobra.ExactArgs so violations carry the validation
// error kind and exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return tcerrors.ErrInvalidArgument(err.Error())
		}
		return nil
	}
}

// noArgs is cobra.NoArgs with the validation error kind.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return tcerrors.ErrInvalidArgument(err.Error())
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
