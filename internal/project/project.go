package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/internal/db/driver"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/util"
)

// StepFunc receives (step, status) notifications during Init so the CLI
// and the dashboard wizard can render progress the same way. Status is
// "start" or "done".
type StepFunc func(step, status string)

// InitOptions configures project initialization.
type InitOptions struct {
	Dir           string
	Name          string // defaults to the directory basename
	PRDPath       string // required
	BootstrapPath string // optional
}

// InitResult reports what Init created.
type InitResult struct {
	ProjectID string
	Name      string
	Paths     Paths
}

// Init creates .tc/ with its subdirectories, migrates a fresh store,
// copies prd.md (and bootstrap.md when given) to the project root,
// records the project row, and writes the .mcp.json skeleton. The
// control-plane URL inside .mcp.json stays empty until an engine binds
// a port.
func Init(ctx context.Context, opts InitOptions, onStep StepFunc) (InitResult, error) {
	notify := func(step, status string) {
		if onStep != nil {
			onStep(step, status)
		}
	}

	paths, err := NewPaths(opts.Dir)
	if err != nil {
		return InitResult{}, err
	}
	if !util.DirExists(paths.Root) {
		return InitResult{}, tcerrors.ErrInvalidArgument(fmt.Sprintf("project directory %s does not exist", paths.Root))
	}
	if util.DirExists(paths.DataDir()) {
		return InitResult{}, tcerrors.ErrAlreadyInitialized(paths.DataDir())
	}
	if !util.FileExists(opts.PRDPath) {
		return InitResult{}, tcerrors.ErrInvalidArgument(fmt.Sprintf("prd file %s does not exist", opts.PRDPath))
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(paths.Root)
	}

	notify("directories", "start")
	for _, dir := range []string{paths.DataDir(), paths.BriefsDir(), paths.LogsDir(), paths.PlansDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return InitResult{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	notify("directories", "done")

	notify("database", "start")
	store, err := db.OpenStore(paths.Root)
	if err != nil {
		return InitResult{}, err
	}
	defer func() { _ = store.Close() }()
	notify("database", "done")

	notify("prd", "start")
	if err := copyUnlessSame(opts.PRDPath, paths.PRDPath()); err != nil {
		return InitResult{}, fmt.Errorf("copy prd: %w", err)
	}
	notify("prd", "done")

	if opts.BootstrapPath != "" {
		notify("bootstrap", "start")
		if !util.FileExists(opts.BootstrapPath) {
			return InitResult{}, tcerrors.ErrInvalidArgument(fmt.Sprintf("bootstrap file %s does not exist", opts.BootstrapPath))
		}
		if err := copyUnlessSame(opts.BootstrapPath, paths.BootstrapPath()); err != nil {
			return InitResult{}, fmt.Errorf("copy bootstrap: %w", err)
		}
		notify("bootstrap", "done")
	}

	notify("project_record", "start")
	proj, err := core.NewProject(uuid.NewString(), name, paths.Root)
	if err != nil {
		return InitResult{}, err
	}
	if err := store.CreateProject(ctx, proj); err != nil {
		return InitResult{}, err
	}
	notify("project_record", "done")

	notify("mcp_config", "start")
	if err := WriteMCPConfig(paths, ""); err != nil {
		return InitResult{}, err
	}
	notify("mcp_config", "done")

	return InitResult{ProjectID: proj.ID, Name: name, Paths: paths}, nil
}

// Handle bundles an opened project: its store, row, and paths. Close
// releases the store.
type Handle struct {
	Store   *db.Store
	Project core.Project
	Paths   Paths
}

// Close releases the underlying store.
func (h *Handle) Close() error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}

// Require opens the project rooted at dir. A missing .tc/ directory is
// the not-initialized error the CLI maps to exit code 3. The settings'
// db_driver/db_dsn select the store backend; sqlite in .tc/ is the
// default.
func Require(ctx context.Context, dir string, cfg *config.Config) (*Handle, error) {
	paths, err := NewPaths(dir)
	if err != nil {
		return nil, err
	}
	if !util.DirExists(paths.DataDir()) {
		return nil, tcerrors.ErrNotInitialized(paths.Root)
	}

	var store *db.Store
	if cfg != nil && cfg.DBDriver != "" && cfg.DBDriver != string(driver.DialectSQLite) {
		dialect, perr := driver.ParseDialect(cfg.DBDriver)
		if perr != nil {
			return nil, tcerrors.ErrConfigInvalid("db_driver", perr.Error())
		}
		store, err = db.OpenStoreWithDialect(cfg.DBDSN, dialect)
	} else {
		if !util.FileExists(paths.DBPath()) {
			return nil, tcerrors.ErrNotInitialized(paths.Root)
		}
		store, err = db.OpenStore(paths.Root)
	}
	if err != nil {
		return nil, err
	}

	proj, err := store.CurrentProject(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Handle{Store: store, Project: proj, Paths: paths}, nil
}

// copyUnlessSame copies src to dst unless they already resolve to the
// same file, so `tc init --prd ./prd.md` in place is a no-op.
func copyUnlessSame(src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if absSrc == absDst {
		return nil
	}
	return util.CopyFile(absSrc, absDst)
}
