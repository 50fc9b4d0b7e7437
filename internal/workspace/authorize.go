package workspace

import "fmt"

// DenyReason codes are returned to authenticated callers; they are not
// security-sensitive because the caller's identity is already established.
type DenyReason string

const (
	DenyNotParticipant         DenyReason = "not_a_participant"
	DenyAssigneeCannotReassign DenyReason = "assignee_cannot_reassign"
	DenyOutsideTeam            DenyReason = "outside_team"
	DenyCannotRemoveOwner      DenyReason = "cannot_remove_owner"
	DenyAlreadyMember          DenyReason = "already_member"
	DenyNotMember              DenyReason = "not_member"
	DenyOwnerOnly              DenyReason = "owner_only"
)

// Decision is the result of an authorization rule: allow, or deny with a
// reason code.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r DenyReason) Decision { return Decision{Reason: r} }

// Err converts a denial into an error wrapping ErrForbidden; it returns nil
// for an allowed decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ForbiddenError{Reason: d.Reason}
}

// ForbiddenError carries the deny reason across the service boundary.
type ForbiddenError struct {
	Reason DenyReason
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("workspace: forbidden (%s)", e.Reason)
}

// Is makes errors.Is(err, ErrForbidden) hold for every denial.
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// The rules below are pure predicates over (caller id, resource snapshot)
// pairs. They never touch storage; callers evaluate them against a snapshot
// taken atomically with the mutation that follows. The team argument is the
// snapshot of the task's associated team, nil when the task has none.

// CanMutateTask allows the task's creator, its current assignee, and anyone
// in the associated team's scope.
func CanMutateTask(callerID string, task Task, team *Team) Decision {
	if callerID != "" && callerID == task.CreatorID {
		return allow()
	}
	if task.AssigneeID != "" && callerID == task.AssigneeID {
		return allow()
	}
	if task.TeamID != "" && team != nil && team.InScope(callerID) {
		return allow()
	}
	return deny(DenyNotParticipant)
}

// CanAssignTask is narrower than CanMutateTask: an existing assignee cannot
// reassign to someone else, only unassign themselves.
func CanAssignTask(callerID string, task Task, team *Team) Decision {
	if callerID != "" && callerID == task.CreatorID {
		return allow()
	}
	if task.TeamID != "" && team != nil && team.InScope(callerID) {
		return allow()
	}
	if task.AssigneeID != "" && callerID == task.AssigneeID {
		return deny(DenyAssigneeCannotReassign)
	}
	return deny(DenyNotParticipant)
}

// CanUnassignTask mirrors CanMutateTask: the assignee may remove themselves.
func CanUnassignTask(callerID string, task Task, team *Team) Decision {
	return CanMutateTask(callerID, task, team)
}

// ValidateTeamScopedAssignment keeps assignment scoped to the team: the
// candidate must be the owner or a current member.
func ValidateTeamScopedAssignment(team Team, candidateID string) Decision {
	if team.InScope(candidateID) {
		return allow()
	}
	return deny(DenyOutsideTeam)
}

// CanRemoveMember forbids removing the owner through the member-removal
// path; ownership transfer or team deletion are the only ways out.
func CanRemoveMember(team Team, targetID string) Decision {
	if team.IsOwner(targetID) {
		return deny(DenyCannotRemoveOwner)
	}
	if !team.IsMember(targetID) {
		return deny(DenyNotMember)
	}
	return allow()
}

// CanAddMember rejects duplicates, nothing else.
func CanAddMember(team Team, candidateID string) Decision {
	if team.IsMember(candidateID) {
		return deny(DenyAlreadyMember)
	}
	return allow()
}

// CanManageTeam restricts membership administration, ownership transfer and
// deletion to the owner.
func CanManageTeam(team Team, callerID string) Decision {
	if team.IsOwner(callerID) {
		return allow()
	}
	return deny(DenyOwnerOnly)
}
