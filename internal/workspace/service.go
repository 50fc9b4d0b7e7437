package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service defines team and task operations. Every mutation takes the caller
// id and evaluates the authorization rules against a snapshot inside the
// same critical section as the write, so two concurrent requests cannot both
// pass a check against stale state.
type Service interface {
	CreateTeam(ctx context.Context, ownerID, name string) (Team, error)
	GetTeam(ctx context.Context, callerID, id string) (Team, error)
	ListTeams(ctx context.Context, callerID string) ([]Team, error)
	AddMember(ctx context.Context, callerID, teamID, userID string) (Team, error)
	RemoveMember(ctx context.Context, callerID, teamID, userID string) (Team, error)
	TransferOwnership(ctx context.Context, callerID, teamID, newOwnerID string) (Team, error)
	DeleteTeam(ctx context.Context, callerID, teamID string) error

	CreateTask(ctx context.Context, creatorID string, in TaskInput) (Task, error)
	GetTask(ctx context.Context, callerID, id string) (Task, error)
	ListTeamTasks(ctx context.Context, callerID, teamID string) ([]Task, error)
	ListOwnTasks(ctx context.Context, callerID string) ([]Task, error)
	UpdateTask(ctx context.Context, callerID, taskID string, upd TaskUpdate) (Task, error)
	AssignTask(ctx context.Context, callerID, taskID, assigneeID string) (Task, error)
	UnassignTask(ctx context.Context, callerID, taskID string) (Task, error)
	AttachTaskToTeam(ctx context.Context, callerID, taskID, teamID string) (Task, error)
	DetachTaskFromTeam(ctx context.Context, callerID, taskID string) (Task, error)
	DeleteTask(ctx context.Context, callerID, taskID string) error
}

// TaskInput carries the fields needed to create a task.
type TaskInput struct {
	Title       string
	Description string
	Priority    TaskPriority
	DueAt       *time.Time
	TeamID      string
	AssigneeID  string
}

// Normalize trims the title and fills the default priority.
func (in *TaskInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Priority == "" {
		in.Priority = TaskPriorityMedium
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	return nil
}

// TaskUpdate updates only the fields whose pointers are set. The creator is
// not here: it is immutable after creation.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *TaskPriority
	Status      *TaskStatus
	DueAt       *time.Time
}

// Validate rejects blank titles and unknown enum values.
func (upd TaskUpdate) Validate() error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return fmt.Errorf("%w: title must not be blank", ErrInvalidInput)
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *upd.Priority)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
	}
	return nil
}

// Apply writes the set fields onto the task and stamps UpdatedAt.
func (upd TaskUpdate) Apply(task *Task, now time.Time) {
	if upd.Title != nil {
		task.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.Priority != nil {
		task.Priority = *upd.Priority
	}
	if upd.Status != nil {
		task.Status = *upd.Status
	}
	if upd.DueAt != nil {
		due := *upd.DueAt
		task.DueAt = &due
	}
	task.UpdatedAt = now
}
