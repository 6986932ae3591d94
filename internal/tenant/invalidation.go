package tenant

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rustok/internal/logger"
	"rustok/pkg/metrics"
)

// InvalidationMessage travels on the broadcast channel when a tenant
// mutates. It carries every identifier the tenant may be cached under;
// receivers evict all of them.
type InvalidationMessage struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug,omitempty"`
	Host     string `json:"host,omitempty"`
	Origin   string `json:"origin"`
}

// Broadcaster propagates invalidations across instances over redis
// pub/sub. Delivery is best-effort: a missed message leaves an entry
// stale until its TTL, which the fixed-TTL design bounds.
type Broadcaster struct {
	client     *redis.Client
	channel    string
	instanceID string
	cache      Cache
	log        logger.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

func NewBroadcaster(client *redis.Client, channel string, cache Cache, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		cache:      cache,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Publish announces a tenant mutation. The caller evicts locally first;
// origin tagging lets this instance ignore its own echo.
func (b *Broadcaster) Publish(ctx context.Context, snap Snapshot) error {
	msg := InvalidationMessage{
		TenantID: snap.ID.String(),
		Slug:     snap.Slug,
		Host:     snap.Host,
		Origin:   b.instanceID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *Broadcaster) Start(ctx context.Context) {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	go b.listen()
	b.log.Infow("tenant invalidation subscriber started", "channel", b.channel)
}

func (b *Broadcaster) Stop() {
	if b.pubsub == nil {
		return
	}
	b.pubsub.Close()
	<-b.done
}

func (b *Broadcaster) listen() {
	defer close(b.done)

	for raw := range b.pubsub.Channel() {
		var msg InvalidationMessage
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			b.log.Warnw("discarding malformed invalidation message", "error", err)
			continue
		}
		if msg.Origin == b.instanceID {
			continue
		}

		keys := messageKeys(msg)
		if len(keys) == 0 {
			continue
		}
		if err := b.cache.Delete(context.Background(), keys...); err != nil {
			b.log.Warnw("failed to evict invalidated tenant", "tenant_id", msg.TenantID, "error", err)
			continue
		}
		metrics.TenantCacheInvalidationsTotal.WithLabelValues("broadcast").Inc()
	}
}

func messageKeys(msg InvalidationMessage) []LookupKey {
	var keys []LookupKey
	if id, err := uuid.Parse(msg.TenantID); err == nil {
		keys = append(keys, ByID(id))
	}
	if msg.Slug != "" {
		keys = append(keys, BySlug(msg.Slug))
	}
	if msg.Host != "" {
		keys = append(keys, ByHost(msg.Host))
	}
	return keys
}
