package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"taskhub.org/internal/audit"
)

type createTeamRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

type transferOwnerRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

func (a *API) handleTeamsCollection(w http.ResponseWriter, r *http.Request) {
	callerID, ok := a.callerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createTeamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		team, err := a.workspace.CreateTeam(r.Context(), callerID, req.Name)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.created", map[string]any{
			"team_id": team.ID,
			"name":    team.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/teams/%s", team.ID))
		writeJSON(w, http.StatusCreated, team)
	case http.MethodGet:
		teams, err := a.workspace.ListTeams(r.Context(), callerID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": teams})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamResource(w http.ResponseWriter, r *http.Request) {
	callerID, ok := a.callerID(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/teams/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	teamID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleTeam(w, r, callerID, teamID)
	case len(parts) == 2 && parts[1] == "members":
		a.handleTeamMembers(w, r, callerID, teamID)
	case len(parts) == 3 && parts[1] == "members":
		a.handleTeamMember(w, r, callerID, teamID, parts[2])
	case len(parts) == 2 && parts[1] == "owner":
		a.handleTeamOwner(w, r, callerID, teamID)
	case len(parts) == 2 && parts[1] == "tasks":
		a.handleTeamTasks(w, r, callerID, teamID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTeam(w http.ResponseWriter, r *http.Request, callerID, teamID string) {
	switch r.Method {
	case http.MethodGet:
		team, err := a.workspace.GetTeam(r.Context(), callerID, teamID)
		if err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)
	case http.MethodDelete:
		if err := a.workspace.DeleteTeam(r.Context(), callerID, teamID); err != nil {
			handleWorkspaceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "team.deleted", map[string]any{"team_id": teamID})
		a.publishTeam(callerID, teamID)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleTeamMembers(w http.ResponseWriter, r *http.Request, callerID, teamID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	team, err := a.workspace.AddMember(r.Context(), callerID, teamID, req.UserID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member_added", map[string]any{
		"team_id":   teamID,
		"member_id": req.UserID,
	})
	a.publishTeam(callerID, teamID)
	writeJSON(w, http.StatusOK, team)
}

func (a *API) handleTeamMember(w http.ResponseWriter, r *http.Request, callerID, teamID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	team, err := a.workspace.RemoveMember(r.Context(), callerID, teamID, userID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member_removed", map[string]any{
		"team_id":   teamID,
		"member_id": userID,
	})
	a.publishTeam(callerID, teamID)
	writeJSON(w, http.StatusOK, team)
}

func (a *API) handleTeamOwner(w http.ResponseWriter, r *http.Request, callerID, teamID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req transferOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	team, err := a.workspace.TransferOwnership(r.Context(), callerID, teamID, req.NewOwnerID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.owner_transferred", map[string]any{
		"team_id":   teamID,
		"new_owner": req.NewOwnerID,
	})
	a.publishTeam(callerID, teamID)
	writeJSON(w, http.StatusOK, team)
}

func (a *API) handleTeamTasks(w http.ResponseWriter, r *http.Request, callerID, teamID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tasks, err := a.workspace.ListTeamTasks(r.Context(), callerID, teamID)
	if err != nil {
		handleWorkspaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
}

func (a *API) publishTeam(actorID, teamID string) {
	if a.stream == nil {
		return
	}
	a.stream.PublishTeam(actorID, teamID)
}
