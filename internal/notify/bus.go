package notify

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("notify: bus closed")

// Bus is the broadcast channel between peers.
type Bus interface {
	// Publish sends n to every current subscriber of channel.
	Publish(ctx context.Context, channel string, n Notification) error

	// Subscribe delivers notifications published to channel until ctx is
	// done, then closes the returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan Notification, error)

	Close() error
}

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 64
