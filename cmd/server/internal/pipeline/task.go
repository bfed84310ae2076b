package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a processing task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Task is a snapshot of one processing run. Progress moves through
// fixed checkpoints so pollers see a monotonic value.
type Task struct {
	ID        string    `json:"task_id"`
	MeetingID string    `json:"meeting_id"`
	RoomID    string    `json:"room_id"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the task will never change again.
func (t Task) Terminal() bool {
	return t.State == StateCompleted || t.State == StateFailed
}

// Registry tracks in-flight and recently finished tasks in memory.
// Finished tasks are pruned after the retention window.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	retention time.Duration
	now       func() time.Time
}

func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		tasks:     make(map[string]*Task),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a new pending task and returns its snapshot.
func (r *Registry) Create(meetingID, roomID string) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	task := &Task{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		RoomID:    roomID,
		State:     StatePending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[task.ID] = task
	return *task
}

// Checkpoint advances a running task to the given progress. Updates to
// unknown or finished tasks are dropped.
func (r *Registry) Checkpoint(id string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok || task.Terminal() {
		return
	}
	task.State = StateRunning
	task.Progress = progress
	task.Message = message
	task.UpdatedAt = r.now()
}

// Complete marks the task finished and stores the summary text.
func (r *Registry) Complete(id, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok || task.Terminal() {
		return
	}
	task.State = StateCompleted
	task.Progress = 100
	task.Message = "completed"
	task.Result = result
	task.UpdatedAt = r.now()
}

// Fail marks the task failed with the given reason. Progress keeps the
// last checkpoint so callers can see how far the run got.
func (r *Registry) Fail(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok || task.Terminal() {
		return
	}
	task.State = StateFailed
	task.Message = "failed"
	task.Error = reason
	task.UpdatedAt = r.now()
}

// Get returns a snapshot of the task. Unknown IDs produce a synthetic
// pending snapshot rather than an error: a task may have been created
// by another instance or already pruned, and pollers treat pending as
// "check again later".
func (r *Registry) Get(id string) Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if task, ok := r.tasks[id]; ok {
		return *task
	}
	now := r.now()
	return Task{
		ID:        id,
		State:     StatePending,
		Message:   "task not yet visible",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// List returns all tracked tasks, newest first.
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Prune drops finished tasks older than the retention window and
// returns how many were removed. Called from the sweep loop.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.retention)
	removed := 0
	for id, task := range r.tasks {
		if task.Terminal() && task.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
