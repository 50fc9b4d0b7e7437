package stream

import (
	"context"
	"testing"
	"time"

	"taskhub.org/internal/workspace"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.PublishTask(EventTaskAssigned, "user-1", workspace.Task{ID: "task-1", TeamID: "team-1"})

	select {
	case evt := <-ch:
		if evt.Kind != EventTaskAssigned || evt.TaskID != "task-1" || evt.TeamID != "team-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeClosesOnContextDone(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Publishing after unsubscribe must not panic.
	s.PublishTeam("user-1", "team-1")
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Subscribe(ctx) // nobody reads
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.PublishTask(EventTaskUpdated, "user-1", workspace.Task{ID: "task-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
