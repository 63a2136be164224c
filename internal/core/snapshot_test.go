package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSnapshot() Snapshot {
	return Snapshot{
		ProjectID: "proj-1",
		Phases: []Phase{
			{ID: "p2", ProjectID: "proj-1", Sequence: 2, Name: "Polish", Status: PhasePending},
			{ID: "p1", ProjectID: "proj-1", Sequence: 1, Name: "Foundation", Status: PhaseRunning},
		},
		Tasks: []Task{
			{ID: "b", PhaseID: "p1", Sequence: 2, Kind: KindCoding, Status: TaskPending},
			{ID: "a", PhaseID: "p1", Sequence: 1, Kind: KindCoding, Status: TaskCompleted},
			{ID: "c", PhaseID: "p2", Sequence: 1, Kind: KindCoding, Status: TaskPending},
		},
		Deps: []Dependency{
			{TaskID: "b", DependsOn: "a"},
			{TaskID: "c", DependsOn: "b"},
		},
	}
}

func TestSnapshot_Normalize(t *testing.T) {
	snap := buildSnapshot()
	snap.Normalize()

	require.Len(t, snap.Phases, 2)
	assert.Equal(t, "p1", snap.Phases[0].ID)
	assert.Equal(t, "p2", snap.Phases[1].ID)

	require.Len(t, snap.Tasks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{snap.Tasks[0].ID, snap.Tasks[1].ID, snap.Tasks[2].ID})
}

func TestSnapshot_UnmetDependencies(t *testing.T) {
	snap := buildSnapshot()

	assert.Empty(t, snap.UnmetDependencies("b"), "a is completed")
	assert.Equal(t, []string{"b"}, snap.UnmetDependencies("c"))
}

func TestSnapshot_UnmetDependencies_UnknownTaskBlocks(t *testing.T) {
	snap := buildSnapshot()
	snap.Deps = append(snap.Deps, Dependency{TaskID: "b", DependsOn: "ghost"})

	assert.Contains(t, snap.UnmetDependencies("b"), "ghost")
}

func TestSnapshot_SkippedSatisfiesDependencies(t *testing.T) {
	snap := buildSnapshot()
	for i := range snap.Tasks {
		if snap.Tasks[i].ID == "a" {
			snap.Tasks[i].Status = TaskSkipped
		}
	}

	assert.Empty(t, snap.UnmetDependencies("b"))
}

func TestSnapshot_AllFinished(t *testing.T) {
	snap := buildSnapshot()
	assert.False(t, snap.AllFinished())

	for i := range snap.Tasks {
		snap.Tasks[i].Status = TaskCompleted
	}
	assert.True(t, snap.AllFinished())

	empty := Snapshot{ProjectID: "proj-1"}
	assert.False(t, empty.AllFinished(), "a plan with no tasks is not finished")
}

func TestSnapshot_Lookups(t *testing.T) {
	snap := buildSnapshot()

	task, ok := snap.TaskByID("b")
	require.True(t, ok)
	assert.Equal(t, 2, task.Sequence)

	_, ok = snap.TaskByID("zz")
	assert.False(t, ok)

	phase, ok := snap.PhaseByID("p2")
	require.True(t, ok)
	assert.Equal(t, "Polish", phase.Name)

	tasks := snap.TasksForPhase("p1")
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)

	assert.Equal(t, 2, snap.MaxSequence("p1"))
	assert.Equal(t, 0, snap.MaxSequence("nope"))
}

func TestSnapshot_RunningTasks(t *testing.T) {
	snap := buildSnapshot()
	assert.Empty(t, snap.RunningTasks())

	snap.Tasks[0].Status = TaskRunning
	assert.Len(t, snap.RunningTasks(), 1)
}
