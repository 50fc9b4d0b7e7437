package workspace

import (
	"errors"
	"time"
)

// TaskStatus is a closed enumeration; free-form status strings are not
// representable.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusInactive  TaskStatus = "inactive"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusOnHold    TaskStatus = "on_hold"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusActive, TaskStatusInactive, TaskStatusCompleted, TaskStatusCancelled, TaskStatusOnHold:
		return true
	}
	return false
}

// TaskPriority orders work loosely; it carries no scheduling semantics.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// Team has exactly one owner and a distinct member set. The owner is not
// implicitly a member; membership rules treat the two separately.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwner reports whether userID owns the team.
func (t Team) IsOwner(userID string) bool { return userID != "" && t.OwnerID == userID }

// IsMember reports whether userID is in the member set.
func (t Team) IsMember(userID string) bool {
	if userID == "" {
		return false
	}
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// InScope reports whether userID is the owner or a member.
func (t Team) InScope(userID string) bool { return t.IsOwner(userID) || t.IsMember(userID) }

// Task has an immutable creator, an optional assignee and an optional team
// association. When a team is set, creator and assignee must be in the
// team's scope at the time the association is established or changed.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	DueAt       *time.Time   `json:"due_at,omitempty"`
	CreatorID   string       `json:"creator_id"`
	AssigneeID  string       `json:"assignee_id,omitempty"`
	TeamID      string       `json:"team_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

var (
	ErrNotFound     = errors.New("workspace: not found")
	ErrInvalidInput = errors.New("workspace: invalid input")
	ErrForbidden    = errors.New("workspace: forbidden")
)
