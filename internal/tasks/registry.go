// Package tasks tracks conversion tasks and runs them on a bounded worker pool.
package tasks

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/storage"
)

// Scheduler accepts task ids for out-of-band execution. Enqueue must not block.
type Scheduler interface {
	Enqueue(id string) error
}

// Update is one worker-originated change to a task record.
type Update struct {
	State      domain.TaskState
	Progress   int
	Chunks     int
	ChunksDone int
	Artifact   *storage.ArtifactHandle
	Error      string
}

// Registry is the authoritative in-memory table of tasks.
type Registry struct {
	mu         sync.RWMutex
	tasks      map[string]*record
	tombstones map[string]time.Time
	scheduler  Scheduler
	events     *EventBus

	now   func() time.Time
	newID func() string
}

type record struct {
	task     domain.Task
	artifact storage.ArtifactHandle
}

// NewRegistry creates an empty registry publishing changes to events, which may be nil.
func NewRegistry(events *EventBus) *Registry {
	return &Registry{
		tasks:      make(map[string]*record),
		tombstones: make(map[string]time.Time),
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// SetScheduler attaches the executor that runs submitted tasks.
func (r *Registry) SetScheduler(s Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduler = s
}

// Events returns the bus the registry publishes to.
func (r *Registry) Events() *EventBus {
	return r.events
}

// Submit validates input and voice, records a pending task and hands it to the
// scheduler. It never waits for synthesis.
func (r *Registry) Submit(ctx context.Context, input string, voice domain.VoiceProfile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(input) == "" {
		return "", domain.InvalidParameter("input text is empty")
	}
	if err := voice.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	id := r.newID()
	for r.known(id) {
		id = r.newID()
	}
	now := r.now()
	r.tasks[id] = &record{task: domain.Task{
		ID:        id,
		State:     domain.TaskStatePending,
		Input:     input,
		Voice:     voice,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	scheduler := r.scheduler
	r.mu.Unlock()

	if scheduler != nil {
		if err := scheduler.Enqueue(id); err != nil {
			r.mu.Lock()
			delete(r.tasks, id)
			// Burn the id so it can never be issued again.
			r.tombstones[id] = now
			r.mu.Unlock()
			return "", err
		}
	}

	r.publish(Event{TaskID: id, Type: EventTypeSubmitted, State: domain.TaskStatePending})
	return id, nil
}

func (r *Registry) known(id string) bool {
	if _, ok := r.tasks[id]; ok {
		return true
	}
	_, ok := r.tombstones[id]
	return ok
}

// Status returns the externally visible state of a task.
func (r *Registry) Status(id string) (domain.TaskStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.tasks[id]
	if !ok {
		return domain.TaskStatus{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return rec.task.Status(), nil
}

// Task returns a snapshot of the full record.
func (r *Registry) Task(id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return rec.task, nil
}

// Artifact returns the handle of a completed task's artifact.
func (r *Registry) Artifact(id string) (storage.ArtifactHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.tasks[id]
	if !ok {
		if _, gone := r.tombstones[id]; gone {
			return storage.ArtifactHandle{}, fmt.Errorf("%w: %s", domain.ErrGone, id)
		}
		return storage.ArtifactHandle{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	switch rec.task.State {
	case domain.TaskStateCompleted:
		return rec.artifact, nil
	case domain.TaskStateFailed, domain.TaskStateCancelled:
		return storage.ArtifactHandle{}, fmt.Errorf("%w: task %s %s: %s", domain.ErrNotReady, id, rec.task.State, rec.task.Error)
	default:
		return storage.ArtifactHandle{}, fmt.Errorf("%w: task %s is %s", domain.ErrNotReady, id, rec.task.State)
	}
}

// Update applies a worker change. Backward moves, changes to terminal tasks and
// decreasing progress fail with domain.ErrInvalidTransition.
func (r *Registry) Update(id string, u Update) error {
	r.mu.Lock()
	rec, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	t := &rec.task
	if !isValidTransition(t.State, u.State) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.State, u.State)
	}

	var event Event
	switch u.State {
	case domain.TaskStateProcessing:
		progress := clampProgress(u.Progress)
		if t.State == domain.TaskStateProcessing && progress < t.Progress {
			r.mu.Unlock()
			return fmt.Errorf("%w: progress %d -> %d", domain.ErrInvalidTransition, t.Progress, progress)
		}
		t.Progress = progress
		if u.Chunks > 0 {
			t.Chunks = u.Chunks
		}
		if u.ChunksDone > t.ChunksDone {
			t.ChunksDone = u.ChunksDone
		}
		eventType := EventTypeProgress
		if t.State == domain.TaskStatePending {
			eventType = EventTypeStatus
		}
		event = Event{Type: eventType}

	case domain.TaskStateCompleted:
		if u.Artifact == nil {
			r.mu.Unlock()
			return fmt.Errorf("%w: completed without artifact", domain.ErrInvalidTransition)
		}
		rec.artifact = *u.Artifact
		t.ArtifactPath = u.Artifact.Path
		t.Progress = 100
		t.ChunksDone = t.Chunks
		t.Error = ""
		event = Event{Type: EventTypeResult}

	case domain.TaskStateFailed, domain.TaskStateCancelled:
		t.Error = u.Error
		if t.Error == "" {
			t.Error = string(u.State)
		}
		event = Event{Type: EventTypeError, Message: t.Error}
	}

	t.State = u.State
	t.UpdatedAt = r.now()
	event.TaskID = id
	event.State = t.State
	event.Progress = t.Progress
	r.mu.Unlock()

	r.publish(event)
	return nil
}

// Cancel moves a pending or processing task to cancelled. The owning worker
// notices between chunks and discards its partial artifact.
func (r *Registry) Cancel(id string) error {
	return r.Update(id, Update{State: domain.TaskStateCancelled, Error: "cancelled by request"})
}

// Cancelled reports whether the task was cancelled or no longer exists.
func (r *Registry) Cancelled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tasks[id]
	return !ok || rec.task.State == domain.TaskStateCancelled
}

// Evict forgets a terminal task. Later artifact lookups report domain.ErrGone.
func (r *Registry) Evict(id string) error {
	r.mu.Lock()
	rec, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if !rec.task.State.Terminal() {
		r.mu.Unlock()
		return fmt.Errorf("%w: task %s is %s", domain.ErrNotReady, id, rec.task.State)
	}
	delete(r.tasks, id)
	r.tombstones[id] = r.now()
	r.mu.Unlock()

	r.publish(Event{TaskID: id, Type: EventTypeEvicted})
	return nil
}

// Expired lists terminal tasks created before cutoff.
func (r *Registry) Expired(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, rec := range r.tasks {
		if rec.task.State.Terminal() && rec.task.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// PruneTombstones forgets evicted ids recorded before cutoff.
func (r *Registry) PruneTombstones(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, at := range r.tombstones {
		if at.Before(cutoff) {
			delete(r.tombstones, id)
			n++
		}
	}
	return n
}

// List returns all live tasks, oldest first.
func (r *Registry) List() []domain.Task {
	r.mu.RLock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, rec := range r.tasks {
		out = append(out, rec.task)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (r *Registry) publish(event Event) {
	if r.events != nil {
		r.events.Publish(event)
	}
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}

// isValidTransition enforces the forward-only task state machine.
func isValidTransition(from, to domain.TaskState) bool {
	switch from {
	case domain.TaskStatePending:
		return to == domain.TaskStateProcessing || to == domain.TaskStateFailed || to == domain.TaskStateCancelled
	case domain.TaskStateProcessing:
		return to == domain.TaskStateProcessing || to == domain.TaskStateCompleted ||
			to == domain.TaskStateFailed || to == domain.TaskStateCancelled
	default:
		return false
	}
}
