// Command smoke-api runs an end-to-end check against a live taskhub-api:
// register two users, build a team, push a task through assignment and
// refresh the session. Exits non-zero on the first failure.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type session struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens tokenPair `json:"tokens"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path, token string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func main() {
	base := os.Getenv("TASKHUB_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
	run := rand.Int63()

	register := func(tag string) session {
		var s session
		code, err := c.call(http.MethodPost, "/v1/auth/register", "", map[string]any{
			"first_name": "Smoke",
			"last_name":  tag,
			"email":      fmt.Sprintf("smoke-%s-%d@taskhub.local", tag, run),
			"password":   "smoke-test-password",
		}, &s)
		if err != nil || code != http.StatusCreated {
			log.Fatalf("register %s: code=%d err=%v", tag, code, err)
		}
		return s
	}

	owner := register("owner")
	member := register("member")

	var team struct {
		ID string `json:"id"`
	}
	code, err := c.call(http.MethodPost, "/v1/teams", owner.Tokens.AccessToken,
		map[string]any{"name": fmt.Sprintf("smoke-%d", run)}, &team)
	if err != nil || code != http.StatusCreated {
		log.Fatalf("create team: code=%d err=%v", code, err)
	}

	code, err = c.call(http.MethodPost, "/v1/teams/"+team.ID+"/members", owner.Tokens.AccessToken,
		map[string]any{"user_id": member.User.ID}, nil)
	if err != nil || code != http.StatusOK {
		log.Fatalf("add member: code=%d err=%v", code, err)
	}

	var task struct {
		ID         string `json:"id"`
		AssigneeID string `json:"assignee_id"`
	}
	code, err = c.call(http.MethodPost, "/v1/tasks", owner.Tokens.AccessToken, map[string]any{
		"title":   "smoke task",
		"team_id": team.ID,
	}, &task)
	if err != nil || code != http.StatusCreated {
		log.Fatalf("create task: code=%d err=%v", code, err)
	}

	code, err = c.call(http.MethodPut, "/v1/tasks/"+task.ID+"/assignee", owner.Tokens.AccessToken,
		map[string]any{"assignee_id": member.User.ID}, &task)
	if err != nil || code != http.StatusOK {
		log.Fatalf("assign task: code=%d err=%v", code, err)
	}
	if task.AssigneeID != member.User.ID {
		log.Fatalf("unexpected assignee: %s", task.AssigneeID)
	}

	// Rotate the member session and prove the old refresh token died.
	var rotated tokenPair
	code, err = c.call(http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"access_token":  member.Tokens.AccessToken,
		"refresh_token": member.Tokens.RefreshToken,
	}, &rotated)
	if err != nil || code != http.StatusOK {
		log.Fatalf("refresh: code=%d err=%v", code, err)
	}
	code, err = c.call(http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"access_token":  member.Tokens.AccessToken,
		"refresh_token": member.Tokens.RefreshToken,
	}, nil)
	if err != nil {
		log.Fatalf("stale refresh: %v", err)
	}
	if code != http.StatusUnauthorized {
		log.Fatalf("stale refresh token accepted: code=%d", code)
	}

	fmt.Printf("✅ taskhub-api smoke test passed: team=%s task=%s\n", team.ID, task.ID)
}
