package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auilabs/aui/internal/observability"
)

// Notifier receives one logical event per committed task mutation. The
// tracker has no transport knowledge; realtime.Dispatcher is the production
// implementation.
type Notifier interface {
	Notify(channelID, eventName string, payload any)
}

// Tracker owns the authoritative state of in-flight operations. All
// mutations happen under one lock; notifications fire after the state
// change has committed, so a degraded transport can never fail a producer.
type Tracker struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	notifier Notifier
	metrics  *observability.Metrics
	store    Store
}

func NewTracker(notifier Notifier, metrics *observability.Metrics) *Tracker {
	return &Tracker{
		tasks:    make(map[string]*Task),
		notifier: notifier,
		metrics:  metrics,
	}
}

// SetStore attaches an archive for terminal task snapshots. Optional; the
// tracker is fully functional without one.
func (tr *Tracker) SetStore(store Store) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.store = store
}

// Create registers a new Pending task and notifies its channel with the
// initial snapshot. totalSteps <= 0 falls back to 100.
func (tr *Tracker) Create(operationType, channelID string, totalSteps int, metadata map[string]any) Task {
	if totalSteps <= 0 {
		totalSteps = 100
	}
	now := time.Now().UTC()
	t := &Task{
		ID:            uuid.NewString(),
		OperationType: operationType,
		ChannelID:     channelID,
		Status:        StatusPending,
		Progress:      0,
		TotalSteps:    totalSteps,
		Message:       fmt.Sprintf("Task %s created", operationType),
		Metadata:      make(map[string]any, len(metadata)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for k, v := range metadata {
		t.Metadata[k] = v
	}

	tr.mu.Lock()
	tr.tasks[t.ID] = t
	snapshot := t.Clone()
	tr.mu.Unlock()

	if tr.metrics != nil {
		tr.metrics.TasksCreated.Inc()
	}
	tr.notify(snapshot)
	return snapshot
}

// Update applies a mutation and notifies with the full resulting snapshot.
// Unknown ids return false without error: the task may already have been
// reaped, which is an expected race. Updates against a terminal task apply
// nothing and emit nothing; the task still exists, so the return is true.
func (tr *Tracker) Update(taskID string, u Update) bool {
	tr.mu.Lock()
	t, ok := tr.tasks[taskID]
	if !ok {
		tr.mu.Unlock()
		return false
	}
	if t.Status.Terminal() {
		tr.mu.Unlock()
		return true
	}

	if u.Progress != nil {
		t.Progress = clamp(*u.Progress, t.TotalSteps)
	} else if u.Increment != nil {
		t.Progress = clamp(t.Progress+*u.Increment, t.TotalSteps)
	}

	if u.Status != nil && u.Status.Valid() && transitionAllowed(t.Status, *u.Status) {
		t.Status = *u.Status
		if t.Status == StatusCompleted {
			// Completion always reports full progress, whatever the caller
			// passed in the same update.
			t.Progress = t.TotalSteps
		}
	}

	if u.Message != nil {
		t.Message = *u.Message
	}
	for k, v := range u.Metadata {
		t.Metadata[k] = v
	}

	t.UpdatedAt = time.Now().UTC()
	snapshot := t.Clone()
	store := tr.store
	tr.mu.Unlock()

	if tr.metrics != nil {
		tr.metrics.TaskUpdates.WithLabelValues(string(snapshot.Status)).Inc()
	}
	if snapshot.Status.Terminal() && store != nil {
		archiveTask(store, snapshot)
	}
	tr.notify(snapshot)
	return true
}

// Get returns a snapshot of the task, if it exists.
func (tr *Tracker) Get(taskID string) (Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	t, ok := tr.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// List returns snapshots filtered by channel and status. An empty channelID
// matches every channel; an empty status set matches every status; when both
// filters are given they are conjunctive. Status matching is match-any.
func (tr *Tracker) List(channelID string, statuses ...Status) []Task {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make([]Task, 0, len(tr.tasks))
	for _, t := range tr.tasks {
		if channelID != "" && t.ChannelID != channelID {
			continue
		}
		if len(statuses) > 0 && !statusIn(t.Status, statuses) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Reap removes terminal tasks whose last update is older than maxAge and
// returns how many were removed. Pending and Running tasks are never
// touched, regardless of age. Reads never remove tasks; this sweep is the
// only way a task leaves the tracker.
func (tr *Tracker) Reap(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	tr.mu.Lock()
	var removed int
	for id, t := range tr.tasks {
		if !t.Status.Terminal() {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		delete(tr.tasks, id)
		removed++
	}
	tr.mu.Unlock()

	if removed > 0 && tr.metrics != nil {
		tr.metrics.TasksReaped.Add(float64(removed))
	}
	return removed
}

// Count reports the number of tracked tasks.
func (tr *Tracker) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.tasks)
}

// Clear drops every task without notifying. Teardown hook for tests and
// shutdown.
func (tr *Tracker) Clear() {
	tr.mu.Lock()
	tr.tasks = make(map[string]*Task)
	tr.mu.Unlock()
}

// StartJanitor reaps terminal tasks older than maxAge every interval until
// ctx is done.
func (tr *Tracker) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tr.Reap(maxAge)
			}
		}
	}()
}

func (tr *Tracker) notify(snapshot Task) {
	if tr.notifier == nil {
		return
	}
	tr.notifier.Notify(snapshot.ChannelID, EventProgressUpdate, snapshot.Payload())
}

func archiveTask(store Store, snapshot Task) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.SaveTask(ctx, snapshot)
	}()
}

func clamp(v, total int) int {
	if v < 0 {
		return 0
	}
	if v > total {
		return total
	}
	return v
}

func transitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to.Terminal()
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
