package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/config"
	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	tcerrors "github.com/randalmurphal/tc/internal/errors"
	"github.com/randalmurphal/tc/internal/project"
)

type testVerifier struct {
	store    *db.Store
	settings *config.Config
	paths    project.Paths
	proj     core.Project
}

// newTestVerifier builds a project directory and its store row. The
// agent binary is `true` so the builtin agent check passes on any box.
func newTestVerifier(t *testing.T) *testVerifier {
	t.Helper()
	ctx := context.Background()

	store := db.NewTestStore(t)
	paths, err := project.NewPaths(t.TempDir())
	require.NoError(t, err)

	p, err := core.NewProject("p1", "demo", paths.Root)
	require.NoError(t, err)
	require.NoError(t, store.CreateProject(ctx, p))

	settings := config.Default()
	settings.AgentBin = "true"
	return &testVerifier{store: store, settings: settings, paths: paths, proj: p}
}

func (tv *testVerifier) verifier() *Verifier {
	return New(Config{
		Store:    tv.store,
		Settings: tv.settings,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Project:  tv.proj,
		Paths:    tv.paths,
	})
}

func resultByName(t *testing.T, rep *Report, name string) Result {
	t.Helper()
	for _, res := range rep.Results {
		if res.Name == name {
			return res
		}
	}
	require.Failf(t, "result not found", "no result named %q", name)
	return Result{}
}

func TestVerifyRunsChecksAndRecords(t *testing.T) {
	t.Parallel()
	tv := newTestVerifier(t)
	ctx := context.Background()

	doc := md(`# Bootstrap

| Tool | Verify |
|------|--------|
| Echo | ~echo ok~ |
| Broken | ~exit 3~ |

Create a .env file with these variables:

- ~DATABASE_URL~
- ~API_KEY~
`)
	require.NoError(t, os.WriteFile(tv.paths.BootstrapPath(), []byte(doc), 0o644))
	env := "# secrets live here\nDATABASE_URL=postgres://localhost/demo\n"
	require.NoError(t, os.WriteFile(filepath.Join(tv.paths.Root, ".env"), []byte(env), 0o644))

	rep, err := tv.verifier().Verify(ctx)
	require.NoError(t, err)

	// 2 tools + 2 env vars + 3 builtins.
	assert.Equal(t, 7, rep.Total())

	echo := resultByName(t, rep, "echo")
	assert.True(t, echo.OK)
	assert.Equal(t, "ok", echo.Output)

	broken := resultByName(t, rep, "broken")
	assert.False(t, broken.OK)
	assert.Equal(t, 3, broken.ExitCode)

	dburl := resultByName(t, rep, "env_database_url")
	assert.True(t, dburl.OK)
	assert.Equal(t, "DATABASE_URL=<set>", dburl.Output)

	apikey := resultByName(t, rep, "env_api_key")
	assert.False(t, apikey.OK)
	assert.Equal(t, "API_KEY not found or empty in .env", apikey.Output)

	// Broken and env_api_key guarantee a failing report.
	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(rep.Err(), &tcErr))
	assert.Equal(t, tcerrors.CodeBootstrapFailed, tcErr.Code)

	// Every result lands in the store, pass or fail.
	recorded, err := tv.store.ListBootstrapChecks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, recorded, 7)
	byName := make(map[string]db.BootstrapCheck, len(recorded))
	for _, rec := range recorded {
		byName[rec.Name] = rec
	}
	assert.Equal(t, "echo ok", byName["echo"].Command)
	assert.True(t, byName["echo"].OK)
	assert.False(t, byName["broken"].OK)
	assert.False(t, byName["echo"].CheckedAt.IsZero())
}

func TestVerifyWithoutBootstrapRunsBuiltins(t *testing.T) {
	t.Parallel()
	tv := newTestVerifier(t)

	rep, err := tv.verifier().Verify(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, rep.Total())
	assert.Equal(t, "true", rep.Results[0].Name)
	assert.True(t, rep.Results[0].OK)
	assert.Equal(t, "tmux", rep.Results[1].Name)
	assert.Equal(t, "git", rep.Results[2].Name)

	recorded, err := tv.store.ListBootstrapChecks(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, recorded, 3)
}

func TestReportErr(t *testing.T) {
	t.Parallel()

	clean := &Report{Results: []Result{{OK: true}, {OK: true}}}
	assert.NoError(t, clean.Err())

	dirty := &Report{Results: []Result{{OK: true}, {}, {}}}
	err := dirty.Err()
	var tcErr *tcerrors.TCError
	require.True(t, tcerrors.As(err, &tcErr))
	assert.Equal(t, tcerrors.CodeBootstrapFailed, tcErr.Code)
	assert.Contains(t, err.Error(), "2 bootstrap check(s) failed")
}

func TestRunCommandCapturesOutput(t *testing.T) {
	t.Parallel()
	tv := newTestVerifier(t)

	res := tv.verifier().run(context.Background(), Check{
		Name: "noisy", Kind: CheckTool, Command: "echo out; echo err 1>&2; exit 1",
	})
	assert.False(t, res.OK)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "out\nerr", res.Output)
}

func TestRunCommandRunsInProjectRoot(t *testing.T) {
	t.Parallel()
	tv := newTestVerifier(t)
	marker := filepath.Join(tv.paths.Root, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("from-the-root"), 0o644))

	res := tv.verifier().run(context.Background(), Check{
		Name: "marker", Kind: CheckTool, Command: "cat marker.txt",
	})
	assert.True(t, res.OK)
	assert.Equal(t, "from-the-root", res.Output)
}

func TestRunCommandTimeout(t *testing.T) {
	t.Parallel()
	tv := newTestVerifier(t)
	tv.settings.CheckTimeoutSecs = 1

	res := tv.verifier().run(context.Background(), Check{
		Name: "slow", Kind: CheckTool, Command: "sleep 5",
	})
	assert.False(t, res.OK)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "command timed out after 1s", res.Output)
}

func TestRunEnvCheck(t *testing.T) {
	t.Parallel()

	check := Check{Name: "env_database_url", Kind: CheckEnv, Command: "env_check:DATABASE_URL"}
	tests := []struct {
		name       string
		env        string // "" means no .env file at all
		wantOK     bool
		wantOutput string
	}{
		{
			name:       "missing file",
			wantOutput: ".env file not found",
		},
		{
			name:       "set",
			env:        "DATABASE_URL=postgres://localhost/demo\n",
			wantOK:     true,
			wantOutput: "DATABASE_URL=<set>",
		},
		{
			name:       "empty value",
			env:        "DATABASE_URL=\n",
			wantOutput: "DATABASE_URL not found or empty in .env",
		},
		{
			name:       "commented out",
			env:        "# DATABASE_URL=postgres://localhost/demo\n",
			wantOutput: "DATABASE_URL not found or empty in .env",
		},
		{
			name:       "whitespace around key and value",
			env:        "  DATABASE_URL = postgres://localhost/demo  \n",
			wantOK:     true,
			wantOutput: "DATABASE_URL=<set>",
		},
		{
			name:       "other variables only",
			env:        "OTHER=1\nANOTHER=2\n",
			wantOutput: "DATABASE_URL not found or empty in .env",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tv := newTestVerifier(t)
			if tt.env != "" {
				path := filepath.Join(tv.paths.Root, ".env")
				require.NoError(t, os.WriteFile(path, []byte(tt.env), 0o644))
			}

			res := tv.verifier().run(context.Background(), check)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantOutput, res.Output)
		})
	}
}
