package panes

import (
	"context"
	"sync"
)

// FakeRunner is a scriptable Runner for tests. Spawn marks the pane
// busy; tests finish a session by writing its result file and calling
// FinishPane.
type FakeRunner struct {
	mu      sync.Mutex
	busy    map[int]bool
	spawned []SpawnSpec
	killed  []int
	tail    map[int]string

	// OnSpawn, when set, runs instead of the default bookkeeping-only
	// behavior's success path. Returning an error fails the spawn.
	OnSpawn func(spec SpawnSpec) error
}

// NewFakeRunner creates an idle fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		busy: make(map[int]bool),
		tail: make(map[int]string),
	}
}

func (f *FakeRunner) Setup(ctx context.Context) error { return nil }

func (f *FakeRunner) Spawn(ctx context.Context, spec SpawnSpec) error {
	f.mu.Lock()
	hook := f.OnSpawn
	f.mu.Unlock()
	if hook != nil {
		if err := hook(spec); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, spec)
	f.busy[spec.Pane] = true
	return nil
}

func (f *FakeRunner) Busy(ctx context.Context, pane int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[pane], nil
}

func (f *FakeRunner) Kill(ctx context.Context, pane int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pane)
	f.busy[pane] = false
	return nil
}

func (f *FakeRunner) CaptureTail(ctx context.Context, pane, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tail[pane], nil
}

func (f *FakeRunner) Teardown(ctx context.Context) error { return nil }

// FinishPane marks the pane idle, as if its pipeline exited.
func (f *FakeRunner) FinishPane(pane int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy[pane] = false
}

// SetTail scripts CaptureTail output for a pane.
func (f *FakeRunner) SetTail(pane int, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tail[pane] = out
}

// Spawned returns every spawn in order.
func (f *FakeRunner) Spawned() []SpawnSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SpawnSpec, len(f.spawned))
	copy(out, f.spawned)
	return out
}

// Killed returns the panes killed, in order.
func (f *FakeRunner) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.killed))
	copy(out, f.killed)
	return out
}
