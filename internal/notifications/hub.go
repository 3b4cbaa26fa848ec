package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max total connections
	maxTotalConns = 10000
)

// FeedTopic is the singleton topic carrying newly created posts.
const FeedTopic = "posts"

// PostTopic derives the comment-thread topic name for a post.
const postTopicPrefix = "post_"

func PostTopic(postID uint) string {
	return fmt.Sprintf("%s%d", postTopicPrefix, postID)
}

// TopicHub maps topic names to the set of live clients joined to them.
// Membership is volatile: nothing survives a process restart, and a client
// that left before a publish receives nothing.
type TopicHub struct {
	mu         sync.RWMutex
	topics     map[string]map[*Client]struct{}
	topicOf    map[*Client]string
	totalConns int
	shutdown   chan struct{}
}

// Name returns a human-readable identifier for this hub.
func (h *TopicHub) Name() string { return "topic hub" }

// NewTopicHub creates a new TopicHub instance.
func NewTopicHub() *TopicHub {
	return &TopicHub{
		topics:   make(map[string]map[*Client]struct{}),
		topicOf:  make(map[*Client]string),
		shutdown: make(chan struct{}),
	}
}

// Register creates a client bound to conn. Returns an error when the
// server connection limit is reached.
func (h *TopicHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.totalConns++
	return client, nil
}

// Join adds the client to a topic. A connection belongs to exactly one
// topic for its lifetime; joining again is a no-op.
func (h *TopicHub) Join(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, joined := h.topicOf[c]; joined {
		return
	}

	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Client]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
	h.topicOf[c] = topic
}

// Leave removes the client from the topic. Calling Leave for a client
// already absent is a no-op, not an error.
func (h *TopicHub) Leave(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(topic, c)
}

func (h *TopicHub) leaveLocked(topic string, c *Client) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, member := members[c]; !member {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
	delete(h.topicOf, c)
}

// UnregisterClient drops the client from its topic (if any) and releases
// its connection slot. Safe to call more than once.
func (h *TopicHub) UnregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topic, ok := h.topicOf[c]; ok {
		h.leaveLocked(topic, c)
	}
	if h.totalConns > 0 {
		h.totalConns--
	}
}

// Broadcast fans the payload out to every current member of the topic.
// Delivery per member is FIFO because each client's Send channel is ordered;
// there is no ordering guarantee between different topics.
func (h *TopicHub) Broadcast(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.topics[topic]
	if !ok {
		return
	}
	for c := range members {
		c.TrySend(payload)
	}
}

// MemberCount returns the number of clients currently joined to the topic.
func (h *TopicHub) MemberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topic returns the topic the client is joined to, if any.
func (h *TopicHub) Topic(c *Client) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topic, ok := h.topicOf[c]
	return topic, ok
}

// StartWiring subscribes the hub to the Redis topic channels so publishes
// from any process instance reach this hub's local members.
func (h *TopicHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartTopicSubscriber(ctx, func(channel, payload string) {
		topic := strings.TrimPrefix(channel, topicChannelPrefix)
		if topic == channel {
			log.Printf("invalid topic channel: %s", channel)
			return
		}
		h.Broadcast(topic, []byte(payload))
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *TopicHub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.topicOf {
		if c.Conn == nil {
			continue
		}
		if err := c.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			log.Printf("failed to write close message for user %d: %v", c.UserID, err)
		}
		if err := c.Conn.Close(); err != nil {
			log.Printf("failed to close websocket for user %d: %v", c.UserID, err)
		}
	}

	h.topics = make(map[string]map[*Client]struct{})
	h.topicOf = make(map[*Client]string)
	h.totalConns = 0

	return nil
}
