// Package redis publishes ingest events onto Redis streams.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// defaultMaxLen caps each stream; trimming is approximate.
const defaultMaxLen = 10000

// streamAdder is the subset of *goredis.Client the publisher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
}

// Publisher appends JSON payloads to the stream named by topic.
type Publisher struct {
	client streamAdder
	maxLen int64
}

// New creates a Publisher. maxLen <= 0 uses the default cap.
func New(client streamAdder, maxLen int64) *Publisher {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Publisher{client: client, maxLen: maxLen}
}

// Publish adds one entry {payload: <json>} and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("redis client is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id, err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", topic, err)
	}
	return id, nil
}
