package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskhub.org/internal/audit"
	"taskhub.org/internal/stream"
	"taskhub.org/internal/workspace"
)

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
	TeamID      string     `json:"team_id"`
	AssigneeID  string     `json:"assignee_id"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
	DueAt       *time.Time `json:"due_at"`
}

type assignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type attachTeamRequest struct {
	TeamID string `json:"team_id"`
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	callerID, ok := a.callerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.workspace.CreateTask(r.Context(), callerID, workspace.TaskInput{
			Title:       req.Title,
			Description: req.Description,
			Priority:    workspace.TaskPriority(req.Priority),
			DueAt:       req.DueAt,
			TeamID:      req.TeamID,
			AssigneeID:  req.AssigneeID,
		})
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.created", map[string]any{
			"task_id": task.ID,
			"team_id": task.TeamID,
		})
		a.publishTask(stream.EventTaskCreated, callerID, task)
		w.Header().Set("Location", fmt.Sprintf("/v1/tasks/%s", task.ID))
		writeJSON(w, http.StatusCreated, task)
	case http.MethodGet:
		tasks, err := a.workspace.ListOwnTasks(r.Context(), callerID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	callerID, ok := a.callerID(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	taskID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleTask(w, r, callerID, taskID)
	case len(parts) == 2 && parts[1] == "assignee":
		a.handleTaskAssignee(w, r, callerID, taskID)
	case len(parts) == 2 && parts[1] == "team":
		a.handleTaskTeam(w, r, callerID, taskID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request, callerID, taskID string) {
	switch r.Method {
	case http.MethodGet:
		task, err := a.workspace.GetTask(r.Context(), callerID, taskID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case http.MethodPatch:
		var req updateTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.workspace.UpdateTask(r.Context(), callerID, taskID, toTaskUpdate(req))
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.updated", map[string]any{"task_id": taskID})
		a.publishTask(stream.EventTaskUpdated, callerID, task)
		writeJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		if err := a.workspace.DeleteTask(r.Context(), callerID, taskID); err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.deleted", map[string]any{"task_id": taskID})
		a.publishTask(stream.EventTaskDeleted, callerID, workspace.Task{ID: taskID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTaskAssignee(w http.ResponseWriter, r *http.Request, callerID, taskID string) {
	switch r.Method {
	case http.MethodPut:
		var req assignTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.workspace.AssignTask(r.Context(), callerID, taskID, req.AssigneeID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.assigned", map[string]any{
			"task_id":     taskID,
			"assignee_id": req.AssigneeID,
		})
		a.publishTask(stream.EventTaskAssigned, callerID, task)
		writeJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		task, err := a.workspace.UnassignTask(r.Context(), callerID, taskID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.unassigned", map[string]any{"task_id": taskID})
		a.publishTask(stream.EventTaskUnassigned, callerID, task)
		writeJSON(w, http.StatusOK, task)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleTaskTeam(w http.ResponseWriter, r *http.Request, callerID, taskID string) {
	switch r.Method {
	case http.MethodPut:
		var req attachTeamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.workspace.AttachTaskToTeam(r.Context(), callerID, taskID, req.TeamID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.attached", map[string]any{
			"task_id": taskID,
			"team_id": req.TeamID,
		})
		a.publishTask(stream.EventTaskUpdated, callerID, task)
		writeJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		task, err := a.workspace.DetachTaskFromTeam(r.Context(), callerID, taskID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.detached", map[string]any{"task_id": taskID})
		a.publishTask(stream.EventTaskUpdated, callerID, task)
		writeJSON(w, http.StatusOK, task)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) publishTask(kind, actorID string, task workspace.Task) {
	if a.stream == nil {
		return
	}
	a.stream.PublishTask(kind, actorID, task)
}

func toTaskUpdate(req updateTaskRequest) workspace.TaskUpdate {
	upd := workspace.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
	}
	if req.Priority != nil {
		p := workspace.TaskPriority(*req.Priority)
		upd.Priority = &p
	}
	if req.Status != nil {
		s := workspace.TaskStatus(*req.Status)
		upd.Status = &s
	}
	return upd
}

func handleWorkspaceError(w http.ResponseWriter, r *http.Request, err error) {
	var forbidden *workspace.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		payload := map[string]any{
			"error":  "forbidden",
			"reason": string(forbidden.Reason),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, workspace.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workspace.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// --- shared JSON helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
