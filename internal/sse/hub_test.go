package sse

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

func TestHubDeliversToOwnSubscribersOnly(t *testing.T) {
	hub := NewHub(logger.NewNop())
	alice := uuid.New()
	bob := uuid.New()

	aliceCh, cancelAlice := hub.Subscribe(alice)
	defer cancelAlice()
	bobCh, cancelBob := hub.Subscribe(bob)
	defer cancelBob()

	hub.Publish(alice, Event{Name: "media.progress", Data: []byte(`{"step":"x"}`)})

	select {
	case event := <-aliceCh:
		require.Equal(t, "media.progress", event.Name)
	default:
		t.Fatal("alice did not receive her event")
	}

	select {
	case <-bobCh:
		t.Fatal("bob received an event addressed to alice")
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(logger.NewNop())
	user := uuid.New()

	ch, cancel := hub.Subscribe(user)
	defer cancel()

	for i := 0; i < 64; i++ {
		hub.Publish(user, Event{Name: "tick"})
	}
	// The buffered channel holds what it can; the rest were dropped without
	// blocking the publisher.
	require.Equal(t, cap(ch), len(ch))
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(logger.NewNop())
	user := uuid.New()

	_, cancel := hub.Subscribe(user)
	cancel()

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(user, Event{Name: "tick"})
}
