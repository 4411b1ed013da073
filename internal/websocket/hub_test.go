package websocket

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

func TestBroadcastStatusNeverBlocks(t *testing.T) {
	// The hub loop is deliberately not running, so the broadcast buffer
	// fills up and every further send must fall through instead of
	// stalling the caller.
	hub := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 600; i++ {
			hub.BroadcastStatus(model.JobClassPipeline, model.IdleStatus())
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BroadcastStatus blocked on a full broadcast buffer")
	}
}

func TestBroadcastNotificationNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 600; i++ {
			hub.BroadcastNotification(model.Notification{ID: "n", Message: "m"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BroadcastNotification blocked on a full broadcast buffer")
	}
}
