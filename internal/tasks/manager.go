package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
)

var (
	// ErrUnknownTask is returned for names no task is registered under.
	ErrUnknownTask = errors.New("unknown task")
	// ErrAlreadyRunning is returned by Run when the task is in progress.
	ErrAlreadyRunning = errors.New("task already running")
)

// Progress receives a completion fraction in [0, 1].
type Progress func(float64)

// Func is the body of a task.
type Func func(ctx context.Context, progress Progress) error

// Task is a named unit of background work.
type Task struct {
	Name        string
	Description string
	Run         Func
	// Interval schedules periodic runs. Zero means manual runs only.
	Interval time.Duration
}

// History persists the completion time of task runs.
type History interface {
	LastTaskRun(ctx context.Context, task string) (time.Time, error)
	SetLastTaskRun(ctx context.Context, task string, t time.Time) error
}

// Status is a snapshot of one task.
type Status struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Running      bool      `json:"running"`
	RunID        string    `json:"runId,omitempty"`
	Progress     float64   `json:"progress"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
	LastRun      time.Time `json:"lastRun,omitzero"`
	LastDuration string    `json:"lastDuration,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	Interval     string    `json:"interval,omitempty"`
}

type entry struct {
	task Task

	mu           sync.Mutex
	running      bool
	runID        string
	cancel       context.CancelFunc
	startedAt    time.Time
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error

	progress atomic.Uint64
}

func (e *entry) setProgress(p float64) {
	e.progress.Store(math.Float64bits(min(max(p, 0), 1)))
}

func (e *entry) getProgress() float64 {
	return math.Float64frombits(e.progress.Load())
}

// Manager runs registered tasks. Each task runs at most once at a time; a
// second start while it runs is a no-op.
type Manager struct {
	history History

	mu    sync.RWMutex
	tasks map[string]*entry
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager. history may be nil.
func NewManager(history History) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		history: history,
		tasks:   make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a task. Registering a name twice replaces the task.
func (m *Manager) Register(t Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(t.Name)
	if _, ok := m.tasks[key]; !ok {
		m.order = append(m.order, key)
	}
	m.tasks[key] = &entry{task: t}
	metrics.TaskRunning.WithLabelValues(t.Name).Set(0)
}

func (m *Manager) lookup(name string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return e, nil
}

// Names returns the registered task names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.order))
	for _, key := range m.order {
		names = append(names, m.tasks[key].task.Name)
	}
	return names
}

// Start runs a task in the background and returns its run id. started is
// false when the task was already running; runID is then the id of that
// run.
func (m *Manager) Start(name string) (runID string, started bool, err error) {
	e, err := m.lookup(name)
	if err != nil {
		return "", false, err
	}
	ctx, id, ok := m.begin(m.ctx, e)
	if !ok {
		return id, false, nil
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.execute(ctx, e, id)
	}()
	return id, true, nil
}

// Run runs a task and waits for it. It returns ErrAlreadyRunning when the
// task is in progress.
func (m *Manager) Run(ctx context.Context, name string) error {
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	runCtx, id, ok := m.begin(ctx, e)
	if !ok {
		return fmt.Errorf("%s: %w", e.task.Name, ErrAlreadyRunning)
	}
	return m.execute(runCtx, e, id)
}

// Cancel cancels the running instance of a task. It reports whether a run
// was cancelled.
func (m *Manager) Cancel(name string) (bool, error) {
	e, err := m.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.cancel == nil {
		return false, nil
	}
	e.cancel()
	logging.Info("Task %s (%s) cancellation requested", e.task.Name, e.runID)
	return true, nil
}

// Status returns a snapshot of every task in registration order.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.order))
	for _, key := range m.order {
		entries = append(entries, m.tasks[key])
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	return out
}

// TaskStatus returns the snapshot of one task.
func (m *Manager) TaskStatus(name string) (Status, error) {
	e, err := m.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

func (e *entry) status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		Name:        e.task.Name,
		Description: e.task.Description,
		Running:     e.running,
		Progress:    e.getProgress(),
		LastRun:     e.lastRun,
	}
	if e.running {
		s.RunID = e.runID
		s.StartedAt = e.startedAt
	}
	if e.lastDuration > 0 {
		s.LastDuration = e.lastDuration.Round(time.Millisecond).String()
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	if e.task.Interval > 0 {
		s.Interval = e.task.Interval.String()
	}
	return s
}

func (m *Manager) begin(parent context.Context, e *entry) (context.Context, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		logging.Info("Task %s already in progress, skipping...", e.task.Name)
		return nil, e.runID, false
	}
	ctx, cancel := context.WithCancel(parent)
	e.running = true
	e.runID = uuid.NewString()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.setProgress(0)
	metrics.TaskRunning.WithLabelValues(e.task.Name).Set(1)
	return ctx, e.runID, true
}

func (m *Manager) execute(ctx context.Context, e *entry, runID string) (err error) {
	name := e.task.Name
	start := time.Now()
	logging.Info("Task %s started (run %s)", name, runID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		duration := time.Since(start)

		status := "success"
		switch {
		case err == nil:
			logging.Info("Task %s completed in %v", name, duration.Round(time.Millisecond))
		case errors.Is(err, context.Canceled):
			status = "cancelled"
			logging.Info("Task %s cancelled after %v", name, duration.Round(time.Millisecond))
		default:
			status = "error"
			logging.Error("Task %s failed after %v: %v", name, duration.Round(time.Millisecond), err)
		}
		metrics.TaskRunsTotal.WithLabelValues(name, status).Inc()
		metrics.TaskLastRunDuration.WithLabelValues(name).Set(duration.Seconds())
		metrics.TaskRunning.WithLabelValues(name).Set(0)

		finished := time.Now()
		if err == nil && m.history != nil {
			// The run context may be cancelled by now; history is still written.
			if herr := m.history.SetLastTaskRun(context.Background(), name, finished); herr != nil {
				logging.Warn("Failed to record last run of %s: %v", name, herr)
			}
		}

		e.mu.Lock()
		e.cancel()
		e.running = false
		e.cancel = nil
		e.lastDuration = duration
		e.lastErr = err
		if err == nil {
			e.lastRun = finished
			e.setProgress(1)
		}
		e.mu.Unlock()
	}()

	return e.task.Run(ctx, e.setProgress)
}

// LoadHistory reads the last completion time of every task from history.
func (m *Manager) LoadHistory(ctx context.Context) error {
	if m.history == nil {
		return nil
	}
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.tasks))
	for _, e := range m.tasks {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		t, err := m.history.LastTaskRun(ctx, e.task.Name)
		if err != nil {
			return fmt.Errorf("last run of %s: %w", e.task.Name, err)
		}
		e.mu.Lock()
		e.lastRun = t
		e.mu.Unlock()
	}
	return nil
}

// StartScheduler starts the periodic runs of every task with an interval.
// The first run of a task is due one interval after its last recorded run;
// overdue tasks start after initialDelay.
func (m *Manager) StartScheduler(initialDelay time.Duration) {
	m.mu.RLock()
	var scheduled []*entry
	for _, key := range m.order {
		if e := m.tasks[key]; e.task.Interval > 0 {
			scheduled = append(scheduled, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(scheduled, func(i, j int) bool { return scheduled[i].task.Interval < scheduled[j].task.Interval })
	for _, e := range scheduled {
		e.mu.Lock()
		last := e.lastRun
		e.mu.Unlock()

		delay := initialDelay
		if !last.IsZero() {
			delay = max(initialDelay, time.Until(last.Add(e.task.Interval)))
		}
		logging.Info("Task %s scheduled every %v, next run in %v", e.task.Name, e.task.Interval, delay.Round(time.Second))

		m.wg.Add(1)
		go m.schedule(e, delay)
	}
}

func (m *Manager) schedule(e *entry, delay time.Duration) {
	defer m.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if ctx, id, ok := m.begin(m.ctx, e); ok {
				_ = m.execute(ctx, e, id)
			}
			timer.Reset(e.task.Interval)
		case <-m.ctx.Done():
			return
		}
	}
}

// Shutdown cancels every running task and waits for background runs to
// return or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
