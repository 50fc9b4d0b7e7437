package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"taskhub.org/internal/auth"
	"taskhub.org/internal/stream"
	"taskhub.org/internal/workspace"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	tokens, err := auth.NewTokens("test-secret-test-secret", "taskhub", "taskhub-api", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	authSvc, err := auth.NewService(auth.NewMemoryStore(), tokens, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(ReadyProbe{}, "test", authSvc, workspace.NewInMemory(), stream.New())
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

type session struct {
	id     string
	header map[string]string
	pair   tokenPairResponse
}

func (c *apiClient) register(email string) session {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   "long-enough-password",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	var payload struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Tokens tokenPairResponse `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode register response: %v", err)
	}
	if payload.Tokens.AccessToken == "" || payload.Tokens.RefreshToken == "" {
		c.t.Fatal("expected a full token pair")
	}
	return session{
		id:     payload.User.ID,
		header: map[string]string{"Authorization": "Bearer " + payload.Tokens.AccessToken},
		pair:   payload.Tokens,
	}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAPITeamTaskFlow(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("owner@example.com")
	member := api.register("member@example.com")

	// Owner creates a team.
	resp := api.post("/v1/teams", map[string]any{"name": "Core"}, owner.header)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected team status: %d", resp.StatusCode)
	}
	team := decode[map[string]any](t, resp)
	teamID := team["id"].(string)

	// Owner adds the member.
	resp = api.post("/v1/teams/"+teamID+"/members", map[string]any{"user_id": member.id}, owner.header)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected add member status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Member creates a task on the team board.
	resp = api.post("/v1/tasks", map[string]any{
		"title":   "Wire the dashboard",
		"team_id": teamID,
	}, member.header)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected task status: %d", resp.StatusCode)
	}
	task := decode[map[string]any](t, resp)
	taskID := task["id"].(string)
	if task["status"] != "active" {
		t.Fatalf("expected new task active, got %v", task["status"])
	}

	// Owner assigns the task to the member.
	resp = api.do(http.MethodPut, "/v1/tasks/"+taskID+"/assignee",
		map[string]any{"assignee_id": member.id}, owner.header)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected assign status: %d", resp.StatusCode)
	}
	assigned := decode[map[string]any](t, resp)
	if assigned["assignee_id"] != member.id {
		t.Fatalf("unexpected assignee: %v", assigned["assignee_id"])
	}

	// The team board lists the task for both participants.
	resp = api.get("/v1/teams/"+teamID+"/tasks", nil, owner.header)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected board status: %d", resp.StatusCode)
	}
	board := decode[map[string]any](t, resp)
	if items := board["items"].([]any); len(items) != 1 {
		t.Fatalf("expected one task on the board, got %d", len(items))
	}
}

func TestAPIRejectsOutsiderAssignment(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("owner@example.com")
	outsider := api.register("outsider@example.com")

	resp := api.post("/v1/teams", map[string]any{"name": "Core"}, owner.header)
	team := decode[map[string]any](t, resp)
	teamID := team["id"].(string)

	resp = api.post("/v1/tasks", map[string]any{
		"title":   "Scoped work",
		"team_id": teamID,
	}, owner.header)
	task := decode[map[string]any](t, resp)
	taskID := task["id"].(string)

	resp = api.do(http.MethodPut, "/v1/tasks/"+taskID+"/assignee",
		map[string]any{"assignee_id": outsider.id}, owner.header)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["reason"] != "outside_team" {
		t.Fatalf("unexpected deny reason: %v", body["reason"])
	}
}

func TestAPIRefreshRotation(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("rotate@example.com")

	resp := api.post("/v1/auth/refresh", map[string]any{
		"access_token":  user.pair.AccessToken,
		"refresh_token": user.pair.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected refresh status: %d", resp.StatusCode)
	}
	rotated := decode[tokenPairResponse](t, resp)
	if rotated.RefreshToken == user.pair.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	// The superseded refresh token must be rejected.
	resp = api.post("/v1/auth/refresh", map[string]any{
		"access_token":  user.pair.AccessToken,
		"refresh_token": user.pair.RefreshToken,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale refresh token, got %d", resp.StatusCode)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/teams", map[string]any{"name": "Core"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestAPILogoutInvalidatesRefresh(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("logout@example.com")

	resp := api.post("/v1/auth/logout", nil, user.header)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected logout status: %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/refresh", map[string]any{
		"access_token":  user.pair.AccessToken,
		"refresh_token": user.pair.RefreshToken,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestAPIRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/register", map[string]any{
		"first_name": "No",
		"last_name":  "Email",
		"email":      "not-an-email",
		"password":   "long-enough-password",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
