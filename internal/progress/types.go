package progress

import "time"

// Status is the closed set of task lifecycle states. Pending may move to
// Running or jump straight to a terminal state; Running may only move to a
// terminal state; terminal states are absorbing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Task is the tracked state of one long-running server operation. Instances
// handed out by the tracker are always clones; callers never alias the
// tracker's own record.
type Task struct {
	ID            string         `json:"task_id"`
	OperationType string         `json:"operation_type"`
	ChannelID     string         `json:"channel_id"`
	Status        Status         `json:"status"`
	Progress      int            `json:"progress"`
	TotalSteps    int            `json:"total_steps"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (t Task) Clone() Task {
	out := t
	out.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// EventPayload is the shape pushed to subscribers on every create/update.
// It mirrors the task's public fields only; registry bookkeeping and the
// owning channel id stay internal.
type EventPayload struct {
	TaskID        string         `json:"task_id"`
	OperationType string         `json:"operation_type"`
	Status        Status         `json:"status"`
	Progress      int            `json:"progress"`
	TotalSteps    int            `json:"total_steps"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata"`
}

func (t Task) Payload() EventPayload {
	return EventPayload{
		TaskID:        t.ID,
		OperationType: t.OperationType,
		Status:        t.Status,
		Progress:      t.Progress,
		TotalSteps:    t.TotalSteps,
		Message:       t.Message,
		Metadata:      t.Metadata,
	}
}

// Update describes one mutation of a task. Nil fields are left untouched.
// When both Progress and Increment are set, Progress wins and Increment is
// ignored; the HTTP layer rejects that combination before it gets here, so
// the tracker only resolves it for direct callers.
type Update struct {
	Progress  *int
	Increment *int
	Status    *Status
	Message   *string
	Metadata  map[string]any
}

// EventProgressUpdate is the event name used for every task snapshot pushed
// through the dispatcher.
const EventProgressUpdate = "progress_update"
