package sse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

const channelPrefix = "studyloop:events:"

type wireEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Bus bridges the in-process Hub over Redis pub/sub so pipeline progress
// raised on one instance reaches SSE connections held by another.
type Bus struct {
	log    *logger.Logger
	client *redis.Client
	hub    *Hub
}

func NewBus(log *logger.Logger, client *redis.Client, hub *Hub) *Bus {
	return &Bus{
		log:    log.With("service", "SSEBus"),
		client: client,
		hub:    hub,
	}
}

// Publish sends the event through Redis; every instance (including this one)
// receives it via the subscription loop and forwards it to its local hub.
func (b *Bus) Publish(ctx context.Context, userID uuid.UUID, event Event) error {
	payload, err := json.Marshal(wireEvent{Name: event.Name, Data: event.Data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+userID.String(), payload).Err()
}

// Run consumes the pattern subscription until ctx is canceled.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			b.dispatch(msg)
		}
	}
}

func (b *Bus) dispatch(msg *redis.Message) {
	userID, err := uuid.Parse(msg.Channel[len(channelPrefix):])
	if err != nil {
		b.log.Warn("event on malformed channel", "channel", msg.Channel)
		return
	}
	var wire wireEvent
	if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
		b.log.Warn("malformed event payload", "channel", msg.Channel, "error", err.Error())
		return
	}
	b.hub.Publish(userID, Event{Name: wire.Name, Data: wire.Data})
}
