package bus

import (
	"context"
	"sync"

	"idobridge/pkg/activity"
)

const defaultBufferSize = 100

// MessageBus queues inbound activities for workers and fans out adapter
// lifecycle events to subscribers.
type MessageBus struct {
	inbound chan activity.Activity

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

// NewMessageBusSize builds a bus whose inbound queue holds up to size activities.
func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan activity.Activity, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, act activity.Activity) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- act:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (activity.Activity, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return activity.Activity{}, false
	case <-mb.done:
		return activity.Activity{}, false
	case act := <-mb.inbound:
		return act, true
	}
}

// Pending reports how many inbound activities are waiting for a worker.
func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
