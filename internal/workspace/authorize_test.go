package workspace

import (
	"errors"
	"testing"
)

func TestCanMutateTask(t *testing.T) {
	task := Task{ID: "t1", CreatorID: "creator"}

	if d := CanMutateTask("creator", task, nil); !d.Allowed {
		t.Fatalf("creator must be allowed, denied with %s", d.Reason)
	}
	if d := CanMutateTask("stranger", task, nil); d.Allowed {
		t.Fatalf("stranger must be denied")
	} else if d.Reason != DenyNotParticipant {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}

	task.AssigneeID = "assignee"
	if d := CanMutateTask("assignee", task, nil); !d.Allowed {
		t.Fatalf("assignee must be allowed, denied with %s", d.Reason)
	}

	team := Team{ID: "team", OwnerID: "owner", Members: []string{"member"}}
	task.TeamID = team.ID
	if d := CanMutateTask("owner", task, &team); !d.Allowed {
		t.Fatalf("team owner must be allowed, denied with %s", d.Reason)
	}
	if d := CanMutateTask("member", task, &team); !d.Allowed {
		t.Fatalf("team member must be allowed, denied with %s", d.Reason)
	}
	if d := CanMutateTask("stranger", task, &team); d.Allowed {
		t.Fatalf("stranger must be denied even with a team")
	}
}

func TestCanMutateTaskIgnoresEmptyIDs(t *testing.T) {
	task := Task{ID: "t1", CreatorID: "creator"}
	if d := CanMutateTask("", task, nil); d.Allowed {
		t.Fatalf("empty caller must never match an unset assignee")
	}
}

func TestCanAssignTaskExcludesAssignee(t *testing.T) {
	team := Team{ID: "team", OwnerID: "owner", Members: []string{"assignee"}}
	task := Task{ID: "t1", CreatorID: "creator", AssigneeID: "assignee"}

	// Without a team the assignee cannot reassign, only the creator can.
	if d := CanAssignTask("assignee", task, nil); d.Allowed {
		t.Fatalf("assignee must not reassign")
	} else if d.Reason != DenyAssigneeCannotReassign {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
	if d := CanAssignTask("creator", task, nil); !d.Allowed {
		t.Fatalf("creator must assign, denied with %s", d.Reason)
	}

	// With a team the assignee qualifies through membership, not through
	// being the assignee.
	task.TeamID = team.ID
	if d := CanAssignTask("assignee", task, &team); !d.Allowed {
		t.Fatalf("member assignee must assign via team scope, denied with %s", d.Reason)
	}
	if d := CanAssignTask("stranger", task, &team); d.Allowed {
		t.Fatalf("stranger must be denied")
	}
}

func TestCanUnassignTaskAllowsAssignee(t *testing.T) {
	task := Task{ID: "t1", CreatorID: "creator", AssigneeID: "assignee"}
	if d := CanUnassignTask("assignee", task, nil); !d.Allowed {
		t.Fatalf("assignee must unassign themselves, denied with %s", d.Reason)
	}
}

func TestValidateTeamScopedAssignment(t *testing.T) {
	team := Team{ID: "team", OwnerID: "owner", Members: []string{"m1"}}

	if d := ValidateTeamScopedAssignment(team, "owner"); !d.Allowed {
		t.Fatalf("owner is in scope, denied with %s", d.Reason)
	}
	if d := ValidateTeamScopedAssignment(team, "m1"); !d.Allowed {
		t.Fatalf("member is in scope, denied with %s", d.Reason)
	}
	if d := ValidateTeamScopedAssignment(team, "outsider"); d.Allowed {
		t.Fatalf("outsider must be out of scope")
	} else if d.Reason != DenyOutsideTeam {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCanRemoveMember(t *testing.T) {
	team := Team{ID: "team", OwnerID: "owner", Members: []string{"m1"}}

	if d := CanRemoveMember(team, "owner"); d.Allowed {
		t.Fatalf("owner removal must always be denied")
	} else if d.Reason != DenyCannotRemoveOwner {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
	if d := CanRemoveMember(team, "m1"); !d.Allowed {
		t.Fatalf("member removal must be allowed, denied with %s", d.Reason)
	}

	team.Members = nil
	if d := CanRemoveMember(team, "m1"); d.Allowed {
		t.Fatalf("removing a non-member must be denied")
	} else if d.Reason != DenyNotMember {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestCanAddMember(t *testing.T) {
	team := Team{ID: "team", OwnerID: "owner", Members: []string{"m1"}}
	if d := CanAddMember(team, "m2"); !d.Allowed {
		t.Fatalf("new member must be allowed, denied with %s", d.Reason)
	}
	if d := CanAddMember(team, "m1"); d.Allowed {
		t.Fatalf("duplicate member must be denied")
	} else if d.Reason != DenyAlreadyMember {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestDecisionErr(t *testing.T) {
	if err := allow().Err(); err != nil {
		t.Fatalf("allow must yield nil error, got %v", err)
	}
	err := deny(DenyCannotRemoveOwner).Err()
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("denial must wrap ErrForbidden, got %v", err)
	}
	var fe *ForbiddenError
	if !errors.As(err, &fe) || fe.Reason != DenyCannotRemoveOwner {
		t.Fatalf("denial must carry the reason, got %v", err)
	}
}
