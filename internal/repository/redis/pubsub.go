package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventsPubSub broadcasts "event changed" notices so every instance can drop
// its cached copy of the event.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelEventsChanged(),
	}
}

type eventChangedMsg struct {
	Type      string `json:"type"`
	EventID   int64  `json:"event_id"`
	Available *int   `json:"available_tickets,omitempty"`
	TsUnix    int64  `json:"ts_unix"`
}

func (p *EventsPubSub) PublishEventChanged(ctx context.Context, eventID int64) error {
	return p.publish(ctx, eventChangedMsg{Type: "event_changed", EventID: eventID})
}

// PublishInventoryChanged is PublishEventChanged carrying the new counter.
func (p *EventsPubSub) PublishInventoryChanged(ctx context.Context, eventID int64, available int) error {
	return p.publish(ctx, eventChangedMsg{
		Type:      "inventory_changed",
		EventID:   eventID,
		Available: &available,
	})
}

func (p *EventsPubSub) publish(ctx context.Context, msg eventChangedMsg) error {
	msg.TsUnix = time.Now().Unix()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every notice until ctx is done.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, eventID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev eventChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.EventID != 0 {
				handler(ctx, ev.EventID)
			}
		}
	}
}
