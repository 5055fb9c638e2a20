package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis implements domain.Channel on top of Redis.
// Live delivery uses Pub/Sub on one channel per job; the short-lived history
// is a capped Stream per job that expires after ttl.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	maxLen int64
}

// Ensure Redis satisfies the interface
var _ domain.Channel = (*Redis)(nil)

// DialRedis connects to Redis and pings it so startup fails fast.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedis returns a Redis-backed notification channel.
// Keys are namespaced by prefix; maxLen caps each job's history.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, maxLen int64) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		maxLen: maxLen,
	}
}

func (r *Redis) channelKey(jobID string) string {
	return r.prefix + ":jobs:" + jobID
}

func (r *Redis) streamKey(jobID string) string {
	return r.prefix + ":events:" + jobID
}

// Publish appends the event to the job's history and broadcasts it.
func (r *Redis) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stream := r.streamKey(event.JobID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: r.maxLen,
			Values: map[string]interface{}{
				"event": data,
			},
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, stream, r.ttl)
		}
		pipe.Publish(ctx, r.channelKey(event.JobID), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Subscribe streams live events of jobID to a Go channel.
func (r *Redis) Subscribe(ctx context.Context, jobID string) (<-chan domain.Event, error) {
	// Create the PubSub connection
	pubsub := r.client.Subscribe(ctx, r.channelKey(jobID))

	// Wait for confirmation that we are subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to job %s: %w", jobID, err)
	}

	outCh := make(chan domain.Event, subscriberBuffer)

	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Error("Failed to unmarshal event", "jobID", jobID, "error", err)
					continue
				}

				select {
				case outCh <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outCh, nil
}

// History reads the retained events of jobID using XRANGE.
func (r *Redis) History(ctx context.Context, jobID string) ([]domain.Event, error) {
	msgs, err := r.client.XRange(ctx, r.streamKey(jobID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history of job %s: %w", jobID, err)
	}

	events := make([]domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		val, ok := msg.Values["event"].(string)
		if !ok {
			slog.Error("Invalid history entry", "jobID", jobID, "msgID", msg.ID)
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(val), &event); err != nil {
			slog.Error("Failed to unmarshal history entry", "jobID", jobID, "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
