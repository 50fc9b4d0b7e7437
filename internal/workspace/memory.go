package workspace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"taskhub.org/internal/ids"
)

// InMemory implements Service with a single mutex; snapshot, rule
// evaluation and write-back all happen under the same lock. Used by tests
// and by dev mode when no Postgres DSN is configured.
type InMemory struct {
	mu    sync.RWMutex
	teams map[string]*Team
	tasks map[string]*Task
	now   func() time.Time
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty workspace.
func NewInMemory() *InMemory {
	return &InMemory{
		teams: make(map[string]*Team),
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

func (s *InMemory) CreateTeam(ctx context.Context, ownerID, name string) (Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Team{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	if ownerID == "" {
		return Team{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	team := &Team{
		ID:        ids.New(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.teams[team.ID] = team
	return copyTeam(team), nil
}

func (s *InMemory) GetTeam(ctx context.Context, callerID, id string) (Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[id]
	if !ok {
		return Team{}, ErrNotFound
	}
	if !team.InScope(callerID) {
		return Team{}, deny(DenyNotParticipant).Err()
	}
	return copyTeam(team), nil
}

func (s *InMemory) ListTeams(ctx context.Context, callerID string) ([]Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Team
	for _, team := range s.teams {
		if team.InScope(callerID) {
			res = append(res, copyTeam(team))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) AddMember(ctx context.Context, callerID, teamID, userID string) (Team, error) {
	if userID == "" {
		return Team{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return Team{}, ErrNotFound
	}
	if d := CanManageTeam(*team, callerID); !d.Allowed {
		return Team{}, d.Err()
	}
	if d := CanAddMember(*team, userID); !d.Allowed {
		return Team{}, d.Err()
	}
	team.Members = append(team.Members, userID)
	team.UpdatedAt = s.now().UTC()
	return copyTeam(team), nil
}

func (s *InMemory) RemoveMember(ctx context.Context, callerID, teamID, userID string) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return Team{}, ErrNotFound
	}
	if d := CanManageTeam(*team, callerID); !d.Allowed {
		return Team{}, d.Err()
	}
	if d := CanRemoveMember(*team, userID); !d.Allowed {
		return Team{}, d.Err()
	}
	team.Members = removeString(team.Members, userID)
	team.UpdatedAt = s.now().UTC()
	return copyTeam(team), nil
}

// TransferOwnership promotes a current member to owner. The previous owner
// joins the member set so they keep access to the team's tasks.
func (s *InMemory) TransferOwnership(ctx context.Context, callerID, teamID, newOwnerID string) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return Team{}, ErrNotFound
	}
	if d := CanManageTeam(*team, callerID); !d.Allowed {
		return Team{}, d.Err()
	}
	if !team.IsMember(newOwnerID) {
		return Team{}, deny(DenyNotMember).Err()
	}
	prevOwner := team.OwnerID
	team.Members = removeString(team.Members, newOwnerID)
	team.Members = append(team.Members, prevOwner)
	team.OwnerID = newOwnerID
	team.UpdatedAt = s.now().UTC()
	return copyTeam(team), nil
}

func (s *InMemory) DeleteTeam(ctx context.Context, callerID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return ErrNotFound
	}
	if d := CanManageTeam(*team, callerID); !d.Allowed {
		return d.Err()
	}
	now := s.now().UTC()
	for _, task := range s.tasks {
		if task.TeamID == teamID {
			task.TeamID = ""
			task.UpdatedAt = now
		}
	}
	delete(s.teams, teamID)
	return nil
}

func (s *InMemory) CreateTask(ctx context.Context, creatorID string, in TaskInput) (Task, error) {
	if creatorID == "" {
		return Task{}, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if err := in.Normalize(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.TeamID != "" {
		team, ok := s.teams[in.TeamID]
		if !ok {
			return Task{}, ErrNotFound
		}
		if d := ValidateTeamScopedAssignment(*team, creatorID); !d.Allowed {
			return Task{}, d.Err()
		}
		if in.AssigneeID != "" {
			if d := ValidateTeamScopedAssignment(*team, in.AssigneeID); !d.Allowed {
				return Task{}, d.Err()
			}
		}
	}

	now := s.now().UTC()
	task := &Task{
		ID:          ids.New(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      TaskStatusActive,
		CreatorID:   creatorID,
		AssigneeID:  in.AssigneeID,
		TeamID:      in.TeamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DueAt != nil {
		due := *in.DueAt
		task.DueAt = &due
	}
	s.tasks[task.ID] = task
	return copyTask(task), nil
}

func (s *InMemory) GetTask(ctx context.Context, callerID, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if d := CanMutateTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return Task{}, d.Err()
	}
	return copyTask(task), nil
}

// ListTeamTasks returns every task tagged with the team, regardless of
// assignee. Filtering by both team and assignee would hide teammates' work
// from a team view.
func (s *InMemory) ListTeamTasks(ctx context.Context, callerID, teamID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	if !team.InScope(callerID) {
		return nil, deny(DenyNotParticipant).Err()
	}
	var res []Task
	for _, task := range s.tasks {
		if task.TeamID == teamID {
			res = append(res, copyTask(task))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) ListOwnTasks(ctx context.Context, callerID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Task
	for _, task := range s.tasks {
		if task.CreatorID == callerID || task.AssigneeID == callerID {
			res = append(res, copyTask(task))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) UpdateTask(ctx context.Context, callerID, taskID string, upd TaskUpdate) (Task, error) {
	if err := upd.Validate(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if d := CanMutateTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return Task{}, d.Err()
	}
	upd.Apply(task, s.now().UTC())
	return copyTask(task), nil
}

func (s *InMemory) AssignTask(ctx context.Context, callerID, taskID, assigneeID string) (Task, error) {
	if assigneeID == "" {
		return Task{}, fmt.Errorf("%w: assignee is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	team := s.teamOf(task)
	if d := CanAssignTask(callerID, *task, team); !d.Allowed {
		return Task{}, d.Err()
	}
	if team != nil {
		if d := ValidateTeamScopedAssignment(*team, assigneeID); !d.Allowed {
			return Task{}, d.Err()
		}
	}
	task.AssigneeID = assigneeID
	task.UpdatedAt = s.now().UTC()
	return copyTask(task), nil
}

func (s *InMemory) UnassignTask(ctx context.Context, callerID, taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if d := CanUnassignTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return Task{}, d.Err()
	}
	if task.AssigneeID != "" {
		task.AssigneeID = ""
		task.UpdatedAt = s.now().UTC()
	}
	return copyTask(task), nil
}

func (s *InMemory) AttachTaskToTeam(ctx context.Context, callerID, taskID, teamID string) (Task, error) {
	if teamID == "" {
		return Task{}, fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if d := CanMutateTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return Task{}, d.Err()
	}
	team, ok := s.teams[teamID]
	if !ok {
		return Task{}, ErrNotFound
	}
	// Association invariant: creator and current assignee must be in the
	// new team's scope. Checked before any field changes.
	if d := ValidateTeamScopedAssignment(*team, task.CreatorID); !d.Allowed {
		return Task{}, d.Err()
	}
	if task.AssigneeID != "" {
		if d := ValidateTeamScopedAssignment(*team, task.AssigneeID); !d.Allowed {
			return Task{}, d.Err()
		}
	}
	task.TeamID = teamID
	task.UpdatedAt = s.now().UTC()
	return copyTask(task), nil
}

func (s *InMemory) DetachTaskFromTeam(ctx context.Context, callerID, taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrNotFound
	}
	if d := CanMutateTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return Task{}, d.Err()
	}
	if task.TeamID != "" {
		task.TeamID = ""
		task.UpdatedAt = s.now().UTC()
	}
	return copyTask(task), nil
}

func (s *InMemory) DeleteTask(ctx context.Context, callerID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if d := CanMutateTask(callerID, *task, s.teamOf(task)); !d.Allowed {
		return d.Err()
	}
	delete(s.tasks, taskID)
	return nil
}

// teamOf resolves a task's team snapshot under the caller's lock.
func (s *InMemory) teamOf(task *Task) *Team {
	if task.TeamID == "" {
		return nil
	}
	return s.teams[task.TeamID]
}

func copyTeam(t *Team) Team {
	out := *t
	out.Members = append([]string(nil), t.Members...)
	return out
}

func copyTask(t *Task) Task {
	out := *t
	if t.DueAt != nil {
		due := *t.DueAt
		out.DueAt = &due
	}
	return out
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
