package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
	"github.com/randalmurphal/tc/tests/testutil"
)

// TestDeadlockFailsProject plants a self-referential dependency behind
// the plan validator's back. The scheduler must call it out instead of
// idling forever, and the diagnostic must name the stuck task.
func TestDeadlockFailsProject(t *testing.T) {
	t.Parallel()
	p := testutil.NewProject(t)

	ph1 := p.Phase("ph1", 1, "core")
	a := p.Task("a", "ph1", 1, core.KindCoding, "build model")
	p.SeedPlan(core.ProjectPlanned, []core.Phase{ph1}, []core.Task{a}, nil)

	// replace_plan rejects cycles, so corrupt the table directly.
	err := p.Store.RunInTx(context.Background(), func(tx *db.TxOps) error {
		return db.InsertDependencyTx(tx, core.Dependency{TaskID: "a", DependsOn: "a"})
	})
	require.NoError(t, err)

	p.ScriptAgent(testutil.Script{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	errCh := p.StartEngine(ctx)
	p.WaitEngine(errCh)

	assert.Equal(t, core.ProjectFailed, p.ProjectStatus())
	assert.Empty(t, p.Runner.Spawned(), "nothing runnable should dispatch")

	// The failure diagnostic lists the task and its unmet dependency.
	evs := p.Events(p.ID, core.EventError)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Payload, "deadlock")
	assert.Contains(t, evs[0].Payload, "a waits on [a]")
}
