// Package fanout is the pub/sub layer that makes N gateway processes
// behave as one logical room per party. Delivery is at-most-once; no
// event in this system needs durability, so a topic with no subscriber
// simply drops publishes.
package fanout

import "context"

// Handler receives every event published on a subscribed topic,
// including events published by other gateway instances.
type Handler func(topic string, data []byte)

type Subscription interface {
	Unsubscribe() error
}

type Bus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string, h Handler) (Subscription, error)
	Close() error
}

// PartyTopic names the topic carrying all events for one party.
func PartyTopic(partyID string) string { return "convoy.party." + partyID }
