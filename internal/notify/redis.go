package notify

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a Bus over Redis pub/sub. Channels are namespaced by prefix so
// several marketplaces can share one server.
type Redis struct {
	client *goredis.Client
	prefix string
	buffer int
}

// NewRedis wraps an existing client.
func NewRedis(client *goredis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, buffer: DefaultBuffer}
}

// DialRedis creates a client for addr and verifies connectivity.
func DialRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	slog.Info("redis bus connected", "addr", addr, "prefix", prefix)
	return NewRedis(client, prefix), nil
}

// Publish implements Bus.
func (r *Redis) Publish(ctx context.Context, channel string, n Notification) error {
	data, err := Marshal(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.prefix+channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Bus. It returns once the server has confirmed the
// subscription, so notifications published afterwards are delivered.
func (r *Redis) Subscribe(ctx context.Context, channel string) (<-chan Notification, error) {
	ps := r.client.Subscribe(ctx, r.prefix+channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan Notification, r.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				n, err := Unmarshal([]byte(msg.Payload))
				if err != nil {
					slog.Warn("discarding undecodable notification", "channel", channel, "error", err)
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Bus.
func (r *Redis) Close() error {
	return r.client.Close()
}
