package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"taskhub.org/internal/ids"
	"taskhub.org/internal/workspace"
)

// Store implements workspace.Service on PostgreSQL. Each mutation runs in a
// transaction that locks the target row before evaluating the authorization
// rules, so the snapshot the rules see is the snapshot the write applies to.
type Store struct {
	db *sql.DB
}

var _ workspace.Service = (*Store)(nil)

// Open connects with pool settings tuned for short request/response calls.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- Teams ---------------------------------------------------------------

func (s *Store) CreateTeam(ctx context.Context, ownerID, name string) (workspace.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return workspace.Team{}, fmt.Errorf("%w: team name is required", workspace.ErrInvalidInput)
	}
	if ownerID == "" {
		return workspace.Team{}, fmt.Errorf("%w: owner is required", workspace.ErrInvalidInput)
	}
	id := ids.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`insert into teams(id, name, owner_id, created_at, updated_at) values($1,$2,$3,$4,$4)`,
		id, name, ownerID, now,
	)
	if err != nil {
		return workspace.Team{}, err
	}
	return workspace.Team{ID: id, Name: name, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetTeam(ctx context.Context, callerID, id string) (workspace.Team, error) {
	team, err := s.loadTeam(ctx, s.db, id, false)
	if err != nil {
		return workspace.Team{}, err
	}
	if !team.InScope(callerID) {
		return workspace.Team{}, &workspace.ForbiddenError{Reason: workspace.DenyNotParticipant}
	}
	return team, nil
}

func (s *Store) ListTeams(ctx context.Context, callerID string) ([]workspace.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct t.id, t.name, t.owner_id, t.created_at, t.updated_at
		from teams t
		left join team_members m on m.team_id = t.id
		where t.owner_id = $1 or m.user_id = $1
		order by t.id asc
	`, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []workspace.Team
	for rows.Next() {
		var team workspace.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, team)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		members, err := s.loadMembers(ctx, s.db, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

func (s *Store) AddMember(ctx context.Context, callerID, teamID, userID string) (workspace.Team, error) {
	if userID == "" {
		return workspace.Team{}, fmt.Errorf("%w: user id is required", workspace.ErrInvalidInput)
	}
	return s.mutateTeam(ctx, teamID, func(tx *sql.Tx, team *workspace.Team) error {
		if d := workspace.CanManageTeam(*team, callerID); !d.Allowed {
			return d.Err()
		}
		if d := workspace.CanAddMember(*team, userID); !d.Allowed {
			return d.Err()
		}
		if _, err := tx.ExecContext(ctx,
			`insert into team_members(team_id, user_id, created_at) values($1,$2,$3)`,
			teamID, userID, time.Now().UTC(),
		); err != nil {
			return err
		}
		team.Members = append(team.Members, userID)
		return nil
	})
}

func (s *Store) RemoveMember(ctx context.Context, callerID, teamID, userID string) (workspace.Team, error) {
	return s.mutateTeam(ctx, teamID, func(tx *sql.Tx, team *workspace.Team) error {
		if d := workspace.CanManageTeam(*team, callerID); !d.Allowed {
			return d.Err()
		}
		if d := workspace.CanRemoveMember(*team, userID); !d.Allowed {
			return d.Err()
		}
		if _, err := tx.ExecContext(ctx,
			`delete from team_members where team_id=$1 and user_id=$2`, teamID, userID,
		); err != nil {
			return err
		}
		team.Members = removeString(team.Members, userID)
		return nil
	})
}

func (s *Store) TransferOwnership(ctx context.Context, callerID, teamID, newOwnerID string) (workspace.Team, error) {
	return s.mutateTeam(ctx, teamID, func(tx *sql.Tx, team *workspace.Team) error {
		if d := workspace.CanManageTeam(*team, callerID); !d.Allowed {
			return d.Err()
		}
		if !team.IsMember(newOwnerID) {
			return &workspace.ForbiddenError{Reason: workspace.DenyNotMember}
		}
		prevOwner := team.OwnerID
		if _, err := tx.ExecContext(ctx,
			`update teams set owner_id=$1 where id=$2`, newOwnerID, teamID,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`delete from team_members where team_id=$1 and user_id=$2`, teamID, newOwnerID,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`insert into team_members(team_id, user_id, created_at) values($1,$2,$3)`,
			teamID, prevOwner, time.Now().UTC(),
		); err != nil {
			return err
		}
		team.Members = removeString(team.Members, newOwnerID)
		team.Members = append(team.Members, prevOwner)
		team.OwnerID = newOwnerID
		return nil
	})
}

func (s *Store) DeleteTeam(ctx context.Context, callerID, teamID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	team, err := s.loadTeam(ctx, tx, teamID, true)
	if err != nil {
		return err
	}
	if d := workspace.CanManageTeam(team, callerID); !d.Allowed {
		return d.Err()
	}
	if _, err := tx.ExecContext(ctx, `update tasks set team_id=null, updated_at=now() where team_id=$1`, teamID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from team_members where team_id=$1`, teamID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from teams where id=$1`, teamID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Tasks ---------------------------------------------------------------

func (s *Store) CreateTask(ctx context.Context, creatorID string, in workspace.TaskInput) (workspace.Task, error) {
	if creatorID == "" {
		return workspace.Task{}, fmt.Errorf("%w: creator is required", workspace.ErrInvalidInput)
	}
	if err := in.Normalize(); err != nil {
		return workspace.Task{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workspace.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if in.TeamID != "" {
		team, err := s.loadTeam(ctx, tx, in.TeamID, true)
		if err != nil {
			return workspace.Task{}, err
		}
		if d := workspace.ValidateTeamScopedAssignment(team, creatorID); !d.Allowed {
			return workspace.Task{}, d.Err()
		}
		if in.AssigneeID != "" {
			if d := workspace.ValidateTeamScopedAssignment(team, in.AssigneeID); !d.Allowed {
				return workspace.Task{}, d.Err()
			}
		}
	}

	now := time.Now().UTC()
	task := workspace.Task{
		ID:          ids.New(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      workspace.TaskStatusActive,
		DueAt:       in.DueAt,
		CreatorID:   creatorID,
		AssigneeID:  in.AssigneeID,
		TeamID:      in.TeamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = tx.ExecContext(ctx, `
		insert into tasks(id, title, description, priority, status, due_at, creator_id, assignee_id, team_id, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, task.ID, task.Title, task.Description, string(task.Priority), string(task.Status),
		task.DueAt, task.CreatorID, nullString(task.AssigneeID), nullString(task.TeamID), now)
	if err != nil {
		return workspace.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return workspace.Task{}, err
	}
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, callerID, id string) (workspace.Task, error) {
	task, err := s.loadTask(ctx, s.db, id, false)
	if err != nil {
		return workspace.Task{}, err
	}
	team, err := s.teamSnapshot(ctx, s.db, task.TeamID)
	if err != nil {
		return workspace.Task{}, err
	}
	if d := workspace.CanMutateTask(callerID, task, team); !d.Allowed {
		return workspace.Task{}, d.Err()
	}
	return task, nil
}

func (s *Store) ListTeamTasks(ctx context.Context, callerID, teamID string) ([]workspace.Task, error) {
	team, err := s.loadTeam(ctx, s.db, teamID, false)
	if err != nil {
		return nil, err
	}
	if !team.InScope(callerID) {
		return nil, &workspace.ForbiddenError{Reason: workspace.DenyNotParticipant}
	}
	// Every task tagged with the team, not just the caller's own.
	return s.queryTasks(ctx, `where team_id=$1`, teamID)
}

func (s *Store) ListOwnTasks(ctx context.Context, callerID string) ([]workspace.Task, error) {
	return s.queryTasks(ctx, `where creator_id=$1 or assignee_id=$1`, callerID)
}

func (s *Store) UpdateTask(ctx context.Context, callerID, taskID string, upd workspace.TaskUpdate) (workspace.Task, error) {
	if err := upd.Validate(); err != nil {
		return workspace.Task{}, err
	}
	return s.mutateTask(ctx, taskID, func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error {
		if d := workspace.CanMutateTask(callerID, *task, team); !d.Allowed {
			return d.Err()
		}
		upd.Apply(task, time.Now().UTC())
		return nil
	})
}

func (s *Store) AssignTask(ctx context.Context, callerID, taskID, assigneeID string) (workspace.Task, error) {
	if assigneeID == "" {
		return workspace.Task{}, fmt.Errorf("%w: assignee is required", workspace.ErrInvalidInput)
	}
	return s.mutateTask(ctx, taskID, func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error {
		if d := workspace.CanAssignTask(callerID, *task, team); !d.Allowed {
			return d.Err()
		}
		if team != nil {
			if d := workspace.ValidateTeamScopedAssignment(*team, assigneeID); !d.Allowed {
				return d.Err()
			}
		}
		task.AssigneeID = assigneeID
		return nil
	})
}

func (s *Store) UnassignTask(ctx context.Context, callerID, taskID string) (workspace.Task, error) {
	return s.mutateTask(ctx, taskID, func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error {
		if d := workspace.CanUnassignTask(callerID, *task, team); !d.Allowed {
			return d.Err()
		}
		task.AssigneeID = ""
		return nil
	})
}

func (s *Store) AttachTaskToTeam(ctx context.Context, callerID, taskID, teamID string) (workspace.Task, error) {
	if teamID == "" {
		return workspace.Task{}, fmt.Errorf("%w: team id is required", workspace.ErrInvalidInput)
	}
	return s.mutateTask(ctx, taskID, func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error {
		if d := workspace.CanMutateTask(callerID, *task, team); !d.Allowed {
			return d.Err()
		}
		next, err := s.loadTeam(ctx, tx, teamID, true)
		if err != nil {
			return err
		}
		if d := workspace.ValidateTeamScopedAssignment(next, task.CreatorID); !d.Allowed {
			return d.Err()
		}
		if task.AssigneeID != "" {
			if d := workspace.ValidateTeamScopedAssignment(next, task.AssigneeID); !d.Allowed {
				return d.Err()
			}
		}
		task.TeamID = teamID
		return nil
	})
}

func (s *Store) DetachTaskFromTeam(ctx context.Context, callerID, taskID string) (workspace.Task, error) {
	return s.mutateTask(ctx, taskID, func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error {
		if d := workspace.CanMutateTask(callerID, *task, team); !d.Allowed {
			return d.Err()
		}
		task.TeamID = ""
		return nil
	})
}

func (s *Store) DeleteTask(ctx context.Context, callerID, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.loadTask(ctx, tx, taskID, true)
	if err != nil {
		return err
	}
	team, err := s.teamSnapshot(ctx, tx, task.TeamID)
	if err != nil {
		return err
	}
	if d := workspace.CanMutateTask(callerID, task, team); !d.Allowed {
		return d.Err()
	}
	if _, err := tx.ExecContext(ctx, `delete from tasks where id=$1`, taskID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- transaction helpers -------------------------------------------------

// mutateTeam runs fn against the team snapshot with the team row locked.
func (s *Store) mutateTeam(ctx context.Context, teamID string, fn func(tx *sql.Tx, team *workspace.Team) error) (workspace.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workspace.Team{}, err
	}
	defer func() { _ = tx.Rollback() }()

	team, err := s.loadTeam(ctx, tx, teamID, true)
	if err != nil {
		return workspace.Team{}, err
	}
	if err := fn(tx, &team); err != nil {
		return workspace.Team{}, err
	}
	team.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `update teams set updated_at=$1 where id=$2`, team.UpdatedAt, teamID); err != nil {
		return workspace.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return workspace.Team{}, err
	}
	return team, nil
}

// mutateTask locks the task row, resolves its team snapshot, runs fn and
// writes the mutated fields back.
func (s *Store) mutateTask(ctx context.Context, taskID string, fn func(tx *sql.Tx, task *workspace.Task, team *workspace.Team) error) (workspace.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workspace.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.loadTask(ctx, tx, taskID, true)
	if err != nil {
		return workspace.Task{}, err
	}
	team, err := s.teamSnapshot(ctx, tx, task.TeamID)
	if err != nil {
		return workspace.Task{}, err
	}
	if err := fn(tx, &task, team); err != nil {
		return workspace.Task{}, err
	}
	task.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		update tasks set title=$1, description=$2, priority=$3, status=$4, due_at=$5, assignee_id=$6, team_id=$7, updated_at=$8
		where id=$9
	`, task.Title, task.Description, string(task.Priority), string(task.Status), task.DueAt,
		nullString(task.AssigneeID), nullString(task.TeamID), task.UpdatedAt, taskID)
	if err != nil {
		return workspace.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return workspace.Task{}, err
	}
	return task, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) loadTeam(ctx context.Context, q querier, id string, forUpdate bool) (workspace.Team, error) {
	query := `select id, name, owner_id, created_at, updated_at from teams where id=$1`
	if forUpdate {
		query += ` for update`
	}
	var team workspace.Team
	err := q.QueryRowContext(ctx, query, id).
		Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workspace.Team{}, workspace.ErrNotFound
	}
	if err != nil {
		return workspace.Team{}, err
	}
	members, err := s.loadMembers(ctx, q, id)
	if err != nil {
		return workspace.Team{}, err
	}
	team.Members = members
	return team, nil
}

func (s *Store) loadMembers(ctx context.Context, q querier, teamID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`select user_id from team_members where team_id=$1 order by created_at asc`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

const taskColumns = `id, title, description, priority, status, due_at, creator_id, assignee_id, team_id, created_at, updated_at`

func (s *Store) loadTask(ctx context.Context, q querier, id string, forUpdate bool) (workspace.Task, error) {
	query := `select ` + taskColumns + ` from tasks where id=$1`
	if forUpdate {
		query += ` for update`
	}
	return scanTask(q.QueryRowContext(ctx, query, id))
}

// teamSnapshot loads the task's team, tolerating an empty id.
func (s *Store) teamSnapshot(ctx context.Context, q querier, teamID string) (*workspace.Team, error) {
	if teamID == "" {
		return nil, nil
	}
	team, err := s.loadTeam(ctx, q, teamID, false)
	if errors.Is(err, workspace.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *Store) queryTasks(ctx context.Context, where string, args ...any) ([]workspace.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+taskColumns+` from tasks `+where+` order by id asc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []workspace.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, task)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (workspace.Task, error) {
	var (
		task     workspace.Task
		priority string
		status   string
		dueAt    sql.NullTime
		assignee sql.NullString
		teamID   sql.NullString
	)
	err := row.Scan(&task.ID, &task.Title, &task.Description, &priority, &status,
		&dueAt, &task.CreatorID, &assignee, &teamID, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workspace.Task{}, workspace.ErrNotFound
	}
	if err != nil {
		return workspace.Task{}, err
	}
	task.Priority = workspace.TaskPriority(priority)
	task.Status = workspace.TaskStatus(status)
	if dueAt.Valid {
		due := dueAt.Time
		task.DueAt = &due
	}
	if assignee.Valid {
		task.AssigneeID = assignee.String
	}
	if teamID.Valid {
		task.TeamID = teamID.String
	}
	return task, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
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

