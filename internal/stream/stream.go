package stream

import (
	"context"
	"sync"
	"time"

	"taskhub.org/internal/workspace"
)

// Event kinds published on the task stream.
const (
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventTaskAssigned   = "task.assigned"
	EventTaskUnassigned = "task.unassigned"
	EventTaskDeleted    = "task.deleted"
	EventTeamChanged    = "team.changed"
)

// TaskEvent describes a change to a task or team, pushed to SSE clients.
type TaskEvent struct {
	Kind      string    `json:"kind"`
	TaskID    string    `json:"task_id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs task events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan TaskEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan TaskEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan TaskEvent {
	ch := make(chan TaskEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt TaskEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// PublishTask is a shorthand for task-scoped events.
func (s *Stream) PublishTask(kind, actorID string, task workspace.Task) {
	s.Publish(TaskEvent{
		Kind:    kind,
		TaskID:  task.ID,
		TeamID:  task.TeamID,
		ActorID: actorID,
	})
}

// PublishTeam is a shorthand for team-scoped events.
func (s *Stream) PublishTeam(actorID, teamID string) {
	s.Publish(TaskEvent{
		Kind:    EventTeamChanged,
		TeamID:  teamID,
		ActorID: actorID,
	})
}
