package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHistory struct {
	mu   sync.Mutex
	runs map[string]time.Time
	err  error
}

func newMemHistory() *memHistory {
	return &memHistory{runs: make(map[string]time.Time)}
}

func (h *memHistory) LastTaskRun(_ context.Context, task string) (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs[task], h.err
}

func (h *memHistory) SetLastTaskRun(_ context.Context, task string, t time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.runs[task] = t
	return nil
}

func (h *memHistory) get(task string) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs[task]
}

// blockingTask returns a task that waits for release or cancellation.
func blockingTask(name string) (Task, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	return Task{
		Name: name,
		Run: func(ctx context.Context, progress Progress) error {
			progress(0.5)
			started <- struct{}{}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}, started, release
}

func waitIdle(t *testing.T, m *Manager, name string) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = m.TaskStatus(name)
		require.NoError(t, err)
		return !st.Running
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestStartRunsAtMostOnce(t *testing.T) {
	m := NewManager(nil)
	task, started, release := blockingTask("Scan")
	m.Register(task)

	id1, ok, err := m.Start("Scan")
	require.NoError(t, err)
	assert.True(t, ok)
	<-started

	id2, ok, err := m.Start("scan")
	require.NoError(t, err)
	assert.False(t, ok, "second start must be a no-op")
	assert.Equal(t, id1, id2)

	err = m.Run(context.Background(), "Scan")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	st, err := m.TaskStatus("Scan")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, id1, st.RunID)
	assert.InDelta(t, 0.5, st.Progress, 1e-9)

	close(release)
	st = waitIdle(t, m, "Scan")
	assert.Empty(t, st.LastError)
	assert.InDelta(t, 1.0, st.Progress, 1e-9)
	assert.False(t, st.LastRun.IsZero())
	assert.Empty(t, st.RunID)
}

func TestRunRecordsHistoryOnSuccessOnly(t *testing.T) {
	h := newMemHistory()
	m := NewManager(h)
	m.Register(Task{Name: "Ok", Run: func(context.Context, Progress) error { return nil }})
	m.Register(Task{Name: "Bad", Run: func(context.Context, Progress) error { return errors.New("boom") }})

	require.NoError(t, m.Run(context.Background(), "Ok"))
	assert.False(t, h.get("Ok").IsZero())

	err := m.Run(context.Background(), "Bad")
	require.EqualError(t, err, "boom")
	assert.True(t, h.get("Bad").IsZero())

	st, err := m.TaskStatus("Bad")
	require.NoError(t, err)
	assert.Equal(t, "boom", st.LastError)
	assert.True(t, st.LastRun.IsZero())
}

func TestHistoryFailureDoesNotFailRun(t *testing.T) {
	h := newMemHistory()
	h.err = errors.New("disk full")
	m := NewManager(h)
	m.Register(Task{Name: "Ok", Run: func(context.Context, Progress) error { return nil }})

	assert.NoError(t, m.Run(context.Background(), "Ok"))
}

func TestCancel(t *testing.T) {
	m := NewManager(nil)
	task, started, _ := blockingTask("Long")
	m.Register(task)

	cancelled, err := m.Cancel("Long")
	require.NoError(t, err)
	assert.False(t, cancelled, "nothing to cancel while idle")

	_, _, err = m.Start("Long")
	require.NoError(t, err)
	<-started

	cancelled, err = m.Cancel("Long")
	require.NoError(t, err)
	assert.True(t, cancelled)

	st := waitIdle(t, m, "Long")
	assert.Contains(t, st.LastError, context.Canceled.Error())
}

func TestUnknownTask(t *testing.T) {
	m := NewManager(nil)

	_, _, err := m.Start("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.ErrorIs(t, m.Run(context.Background(), "nope"), ErrUnknownTask)
	_, err = m.Cancel("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
	_, err = m.TaskStatus("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestPanicIsRecovered(t *testing.T) {
	m := NewManager(nil)
	m.Register(Task{Name: "Panic", Run: func(context.Context, Progress) error { panic("bad state") }})

	err := m.Run(context.Background(), "Panic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")

	// The task can run again after a panic.
	err = m.Run(context.Background(), "Panic")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
}

func TestNamesAndStatusKeepRegistrationOrder(t *testing.T) {
	m := NewManager(nil)
	noop := func(context.Context, Progress) error { return nil }
	m.Register(Task{Name: "B", Run: noop})
	m.Register(Task{Name: "A", Run: noop, Interval: time.Hour})
	m.Register(Task{Name: "b", Description: "replaced", Run: noop})

	assert.Equal(t, []string{"b", "A"}, m.Names())

	st := m.Status()
	require.Len(t, st, 2)
	assert.Equal(t, "replaced", st[0].Description)
	assert.Equal(t, "1h0m0s", st[1].Interval)
}

func TestLoadHistory(t *testing.T) {
	h := newMemHistory()
	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.runs["Scan"] = last
	m := NewManager(h)
	m.Register(Task{Name: "Scan", Run: func(context.Context, Progress) error { return nil }})

	require.NoError(t, m.LoadHistory(context.Background()))
	st, err := m.TaskStatus("Scan")
	require.NoError(t, err)
	assert.True(t, last.Equal(st.LastRun))
}

func TestSchedulerRunsOverdueTask(t *testing.T) {
	h := newMemHistory()
	h.runs["Due"] = time.Now().Add(-2 * time.Hour)
	h.runs["Recent"] = time.Now()

	m := NewManager(h)
	var mu sync.Mutex
	runs := map[string]int{}
	count := func(name string) Func {
		return func(context.Context, Progress) error {
			mu.Lock()
			runs[name]++
			mu.Unlock()
			return nil
		}
	}
	m.Register(Task{Name: "Due", Run: count("Due"), Interval: time.Hour})
	m.Register(Task{Name: "Recent", Run: count("Recent"), Interval: time.Hour})
	m.Register(Task{Name: "Manual", Run: count("Manual")})
	require.NoError(t, m.LoadHistory(context.Background()))

	m.StartScheduler(10 * time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs["Due"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, runs["Recent"])
	assert.Zero(t, runs["Manual"])
}

func TestShutdownCancelsRunningTasks(t *testing.T) {
	m := NewManager(nil)
	task, started, _ := blockingTask("Long")
	m.Register(task)

	_, _, err := m.Start("Long")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	st, err := m.TaskStatus("Long")
	require.NoError(t, err)
	assert.False(t, st.Running)
}
