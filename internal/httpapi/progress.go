package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/auilabs/aui/internal/progress"
)

type createTaskRequest struct {
	OperationType string         `json:"operation_type"`
	ChannelID     string         `json:"channel_id"`
	TotalSteps    int            `json:"total_steps,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type updateTaskRequest struct {
	Progress  *int           `json:"progress,omitempty"`
	Increment *int           `json:"increment,omitempty"`
	Status    *string        `json:"status,omitempty"`
	Message   *string        `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type reapRequest struct {
	MaxAgeSeconds float64 `json:"max_age_seconds"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.OperationType = strings.TrimSpace(req.OperationType)
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	if req.OperationType == "" {
		respondError(w, http.StatusBadRequest, "missing_operation_type", "operation_type is required")
		return
	}
	if req.ChannelID == "" {
		respondError(w, http.StatusBadRequest, "missing_channel_id", "channel_id is required")
		return
	}
	if req.TotalSteps < 0 {
		respondError(w, http.StatusBadRequest, "invalid_total_steps", "total_steps must not be negative")
		return
	}

	task := s.tracker.Create(req.OperationType, req.ChannelID, req.TotalSteps, req.Metadata)
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := s.tracker.Get(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "task_not_found", "task "+taskID+" not found")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// Conflicting parameters are the caller's mistake and rejected here;
	// the tracker would otherwise resolve them as progress-wins.
	if req.Progress != nil && req.Increment != nil {
		respondError(w, http.StatusBadRequest, "conflicting_progress", "cannot provide both progress and increment")
		return
	}

	update := progress.Update{
		Progress:  req.Progress,
		Increment: req.Increment,
		Message:   req.Message,
		Metadata:  req.Metadata,
	}
	if req.Status != nil {
		status := progress.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_status", "unknown status "+*req.Status)
			return
		}
		update.Status = &status
	}

	if !s.tracker.Update(taskID, update) {
		respondError(w, http.StatusNotFound, "task_not_found", "task "+taskID+" not found")
		return
	}
	task, ok := s.tracker.Get(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "task_not_found", "task "+taskID+" not found")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(r.URL.Query().Get("channel_id"))

	var statuses []progress.Status
	for _, raw := range r.URL.Query()["status"] {
		status := progress.Status(strings.ToLower(strings.TrimSpace(raw)))
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_status", "unknown status "+raw)
			return
		}
		statuses = append(statuses, status)
	}

	tasks := s.tracker.List(channelID, statuses...)
	respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleReapTasks(w http.ResponseWriter, r *http.Request) {
	var req reapRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.MaxAgeSeconds < 0 {
		respondError(w, http.StatusBadRequest, "invalid_max_age", "max_age_seconds must not be negative")
		return
	}

	removed := s.tracker.Reap(time.Duration(req.MaxAgeSeconds * float64(time.Second)))
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
