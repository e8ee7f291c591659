package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/redis/go-redis/v9"
)

// Message is published on the channel of the content kind.
type Message struct {
	Kind   models.ContentKind `json:"kind"`
	ID     string             `json:"id"`
	State  State              `json:"state"`
	Reason string             `json:"reason,omitempty"`
	At     time.Time          `json:"at"`
}

// ChannelFor returns the pub/sub channel of a content kind.
func ChannelFor(prefix string, kind models.ContentKind) string {
	return fmt.Sprintf("%s:%s", prefix, kind)
}

// RedisPublisher announces visibility changes on a per-kind channel.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Publishable(ctx context.Context, ref models.ContentRef) error {
	return p.publish(ctx, Message{Kind: ref.Kind, ID: ref.ID, State: StatePublishable, At: time.Now()})
}

func (p *RedisPublisher) Withdrawn(ctx context.Context, ref models.ContentRef, reason string) error {
	return p.publish(ctx, Message{Kind: ref.Kind, ID: ref.ID, State: StateWithdrawn, Reason: reason, At: time.Now()})
}

func (p *RedisPublisher) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, ChannelFor(p.prefix, msg.Kind), body).Err()
}

// NewRedisRegistry registers one redis publisher per known content kind.
func NewRedisRegistry(rdb *redis.Client, prefix string) *Registry {
	r := NewRegistry()
	pub := NewRedisPublisher(rdb, prefix)
	for _, kind := range models.ContentKinds() {
		r.Register(kind, pub)
	}
	return r
}
