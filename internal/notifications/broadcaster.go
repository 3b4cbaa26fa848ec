package notifications

import (
	"context"
)

// Broadcaster is the publish facade handed to the task queue. With Redis
// available it routes through the Notifier so all instances fan out;
// otherwise it broadcasts straight into the local hub.
type Broadcaster struct {
	hub      *TopicHub
	notifier *Notifier
}

// NewBroadcaster wires a broadcaster over the hub and an optional notifier.
func NewBroadcaster(hub *TopicHub, notifier *Notifier) *Broadcaster {
	return &Broadcaster{hub: hub, notifier: notifier}
}

// Publish delivers the payload to all current members of the topic.
func (b *Broadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.notifier != nil && b.notifier.rdb != nil {
		return b.notifier.PublishTopic(ctx, topic, string(payload))
	}
	if b.hub != nil {
		b.hub.Broadcast(topic, payload)
	}
	return nil
}
