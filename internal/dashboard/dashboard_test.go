package dashboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/db"
)

func demoSnapshot() *core.Snapshot {
	snap := &core.Snapshot{
		ProjectID: "p1",
		Project:   core.Project{ID: "p1", Name: "demo", Status: core.ProjectRunning},
		Phases: []core.Phase{
			{ID: "ph1", ProjectID: "p1", Sequence: 1, Name: "Foundation", Status: core.PhaseRunning},
			{ID: "ph2", ProjectID: "p1", Sequence: 2, Name: "Service", Status: core.PhasePending},
		},
		Tasks: []core.Task{
			{ID: "t1", PhaseID: "ph1", Sequence: 1, Kind: core.KindCoding, Name: "set up repo", Status: core.TaskCompleted},
			{ID: "t2", PhaseID: "ph1", Sequence: 2, Kind: core.KindCoding, Name: "add store", Status: core.TaskRunning},
			{ID: "t3", PhaseID: "ph1", Sequence: 3, Kind: core.KindReview, Name: "review store", Status: core.TaskPending},
			{ID: "t4", PhaseID: "ph2", Sequence: 1, Kind: core.KindCoding, Name: "wire http", Status: core.TaskFailed, RetryCount: 1},
		},
	}
	snap.Normalize()
	return snap
}

func demoModel() Model {
	m := New(Config{})
	m.width = 100
	m.height = 30
	m.snap = demoSnapshot()
	return m
}

func statusPayload(entity, from, to string) string {
	return core.MarshalPayload(core.StatusChangePayload{Entity: entity, From: from, To: to})
}

func TestMergeEventsDedupesAndSorts(t *testing.T) {
	t.Parallel()
	m := New(Config{})

	m.mergeEvents([]core.Event{
		{ID: 3, Kind: core.EventError},
		{ID: 1, Kind: core.EventStatusChange},
		{ID: 2, Kind: core.EventEngineTick}, // heartbeat, filtered
	})
	m.mergeEvents([]core.Event{
		{ID: 1, Kind: core.EventStatusChange}, // duplicate
		{ID: 4, Kind: core.EventProgress},
	})

	ids := make([]int64, len(m.feed))
	for i, ev := range m.feed {
		ids[i] = ev.ID
	}
	assert.Equal(t, []int64{1, 3, 4}, ids)
}

func TestMergeEventsTrimsToCapacity(t *testing.T) {
	t.Parallel()
	m := New(Config{})

	events := make([]core.Event, feedCapacity+50)
	for i := range events {
		events[i] = core.Event{ID: int64(i + 1), Kind: core.EventProgress}
	}
	m.mergeEvents(events)

	require.Len(t, m.feed, feedCapacity)
	assert.Equal(t, int64(51), m.feed[0].ID)
	// Trimmed ids are forgotten so a late re-read cannot resurrect them
	// past the cap.
	assert.False(t, m.seen[1])
	assert.True(t, m.seen[51])
}

func TestScrollKeysMoveOffset(t *testing.T) {
	t.Parallel()
	m := New(Config{})
	m.mergeEvents([]core.Event{
		{ID: 1, Kind: core.EventProgress},
		{ID: 2, Kind: core.EventProgress},
		{ID: 3, Kind: core.EventProgress},
	})

	step := func(key tea.KeyMsg) {
		next, _ := m.Update(key)
		m = next.(Model)
	}

	step(tea.KeyMsg{Type: tea.KeyUp})
	step(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, m.offset)

	// Never scrolls past the oldest line.
	step(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, m.offset)

	step(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.offset)

	step(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	assert.Equal(t, 0, m.offset)
}

func TestQuitKeyQuits(t *testing.T) {
	t.Parallel()
	m := New(Config{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWatchFrameToEvent(t *testing.T) {
	t.Parallel()

	var f watchFrame
	raw := `{"type":"event","id":7,"kind":"status_change","subject":"t2",` +
		`"payload":{"entity":"task","from":"pending","to":"running"},` +
		`"time":"2026-08-25T12:00:00Z"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	ev := f.event()
	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, core.EventStatusChange, ev.Kind)
	assert.Equal(t, "t2", ev.Subject)
	assert.JSONEq(t, `{"entity":"task","from":"pending","to":"running"}`, ev.Payload)

	// Payload-less frames arrive as JSON null.
	require.NoError(t, json.Unmarshal([]byte(`{"type":"event","id":8,"kind":"engine_tick","payload":null}`), &f))
	assert.Empty(t, f.event().Payload)
}

func TestEventDetail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ev   core.Event
		want string
	}{
		{
			name: "status change",
			ev:   core.Event{Kind: core.EventStatusChange, Payload: statusPayload("task", "pending", "running")},
			want: "task -> running",
		},
		{
			name: "status change with reason",
			ev: core.Event{Kind: core.EventStatusChange, Payload: core.MarshalPayload(core.StatusChangePayload{
				Entity: "project", From: "running", To: "paused", Reason: "operator pause",
			})},
			want: "project -> paused (operator pause)",
		},
		{
			name: "progress with percent",
			ev:   core.Event{Kind: core.EventProgress, Payload: `{"percent":40,"note":"half the schema done"}`},
			want: "40% half the schema done",
		},
		{
			name: "error",
			ev:   core.Event{Kind: core.EventError, Payload: `{"message":"tests failed"}`},
			want: "tests failed",
		},
		{
			name: "review verdict with findings",
			ev:   core.Event{Kind: core.EventReviewVerdict, Payload: `{"verdict":"fail","findings":["a","b"]}`},
			want: "fail (2 findings)",
		},
		{
			name: "human input request",
			ev:   core.Event{Kind: core.EventHumanInputRequest, Payload: `{"request_id":"q1","question":"Postgres or SQLite?"}`},
			want: "Postgres or SQLite?",
		},
		{
			name: "overflow",
			ev:   core.Event{Kind: core.EventOverflow, Payload: `{"dropped":12}`},
			want: "12 events dropped",
		},
		{
			name: "empty payload",
			ev:   core.Event{Kind: core.EventStatusChange},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, eventDetail(tt.ev))
		})
	}
}

func TestViewRendersPlanTree(t *testing.T) {
	t.Parallel()
	m := demoModel()

	out := m.View()
	assert.Contains(t, out, "tc demo")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "[>>] 1. Foundation")
	assert.Contains(t, out, "[--] 2. Service")
	assert.Contains(t, out, "[x] set up repo")
	assert.Contains(t, out, "[>] add store")
	assert.Contains(t, out, "review store (review)")
	assert.Contains(t, out, "[!] wire http")
	assert.Contains(t, out, "(retry 1)")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "polling")
	assert.Contains(t, out, "q quit")
}

func TestViewRendersSessionsAndQuestions(t *testing.T) {
	t.Parallel()
	m := demoModel()
	m.sessions = []core.Session{
		{ID: "s1", TaskID: "t2", Pane: core.PaneCoding, ProcessID: 4242,
			Status: core.SessionRunning, StartedAt: time.Now().Add(-3 * time.Second)},
		{ID: "s2", TaskID: "t3", Pane: core.PaneReview, ProcessID: 4243,
			Status: core.SessionRunning, StartedAt: time.Now()},
	}
	m.pending = []db.HumanInput{{ID: "q-123", Question: "Use Postgres or SQLite?"}}

	out := m.View()
	assert.Contains(t, out, "CODING")
	assert.Contains(t, out, "add store")
	assert.Contains(t, out, "pid 4242")
	assert.Contains(t, out, "REVIEW")
	assert.Contains(t, out, "Use Postgres or SQLite?")
	assert.Contains(t, out, "tc respond --request q-123")
}

func TestViewRendersEventFeed(t *testing.T) {
	t.Parallel()
	m := demoModel()
	m.live = true
	m.mergeEvents([]core.Event{
		{ID: 1, Kind: core.EventStatusChange, Subject: "t2",
			CreatedAt: time.Now(), Payload: statusPayload("task", "pending", "running")},
		{ID: 2, Kind: core.EventError, Subject: "t4",
			CreatedAt: time.Now(), Payload: `{"message":"build broke"}`},
	})

	out := m.View()
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "status_change t2 task -> running")
	assert.Contains(t, out, "error t4 build broke")
}

func TestViewBeforeFirstRefresh(t *testing.T) {
	t.Parallel()
	m := New(Config{})
	assert.Contains(t, m.View(), "loading project state")
}

func TestViewWithoutPlan(t *testing.T) {
	t.Parallel()
	m := demoModel()
	m.snap = &core.Snapshot{
		ProjectID: "p1",
		Project:   core.Project{ID: "p1", Name: "demo", Status: core.ProjectInitialized},
	}
	assert.Contains(t, m.View(), "no plan yet, run tc plan")
}

func TestViewShowsPausedFlag(t *testing.T) {
	t.Parallel()
	m := demoModel()
	m.snap.Project.Status = core.ProjectPaused
	assert.Contains(t, m.View(), "PAUSED")
}

func TestRefreshReadsStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := db.NewTestStore(t)

	p, err := core.NewProject("p1", "demo", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateProject(ctx, p))
	_, err = store.AppendEvent(ctx, core.NewEvent(core.EventError, "t1", `{"message":"boom"}`))
	require.NoError(t, err)

	m := New(Config{Store: store, ProjectID: "p1"})
	msg := m.refresh()()
	rm, ok := msg.(refreshMsg)
	require.True(t, ok)
	require.NoError(t, rm.err)

	assert.Equal(t, "p1", rm.snap.Project.ID)
	found := false
	for _, ev := range rm.events {
		if ev.Kind == core.EventError && ev.Subject == "t1" {
			found = true
		}
	}
	assert.True(t, found, "appended event should be readable")
}

func TestRefreshErrorKeepsLastState(t *testing.T) {
	t.Parallel()
	m := demoModel()

	next, _ := m.Update(refreshMsg{err: assert.AnError})
	m = next.(Model)

	require.NotNil(t, m.snap)
	assert.Contains(t, m.View(), assert.AnError.Error())
}
