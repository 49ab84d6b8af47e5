package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"idobridge/pkg/activity"
)

// ErrNotSupported is returned by adapters for operations their channel cannot perform.
var ErrNotSupported = errors.New("operation not supported by channel")

// Adapter is the channel-side contract the bot runtime talks to.
type Adapter interface {
	SendActivities(ctx context.Context, tc *Context, activities []activity.Activity) ([]activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, tc *Context, act activity.Activity) error
	DeleteActivity(ctx context.Context, tc *Context, ref activity.ConversationReference) error
	ContinueConversation(ctx context.Context, ref activity.ConversationReference, logic Logic) error
}

// Logic is the bot's business logic for one turn.
type Logic func(ctx context.Context, tc *Context) error

// Context is the state of one turn: the incoming activity and the adapter that
// delivered it.
type Context struct {
	adapter  Adapter
	activity activity.Activity

	mu        sync.Mutex
	responded bool
}

// NewContext wraps an incoming activity for processing.
func NewContext(adapter Adapter, act activity.Activity) *Context {
	return &Context{adapter: adapter, activity: act}
}

// Activity returns the incoming activity.
func (c *Context) Activity() activity.Activity {
	return c.activity
}

// Adapter returns the adapter that created the turn.
func (c *Context) Adapter() Adapter {
	return c.adapter
}

// Responded reports whether at least one activity was sent during the turn.
func (c *Context) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

// SendActivity sends one plain-text reply into the incoming activity's conversation.
func (c *Context) SendActivity(ctx context.Context, text string) (activity.ResourceResponse, error) {
	responses, err := c.SendActivities(ctx, activity.Activity{Type: activity.TypeMessage, Text: text})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if len(responses) == 0 {
		return activity.ResourceResponse{}, errors.New("adapter returned no resource response")
	}

	return responses[0], nil
}

// SendActivities addresses each activity as a reply to the incoming one and sends
// them in order.
func (c *Context) SendActivities(ctx context.Context, activities ...activity.Activity) ([]activity.ResourceResponse, error) {
	if c.adapter == nil {
		return nil, errors.New("turn context has no adapter")
	}

	ref := activity.GetConversationReference(c.activity)
	outgoing := make([]activity.Activity, 0, len(activities))
	for _, act := range activities {
		if act.Type == "" {
			act.Type = activity.TypeMessage
		}
		outgoing = append(outgoing, activity.ApplyConversationReference(act, ref, false))
	}

	responses, err := c.adapter.SendActivities(ctx, c, outgoing)
	if len(responses) > 0 {
		c.mu.Lock()
		c.responded = true
		c.mu.Unlock()
	}
	if err != nil {
		return responses, fmt.Errorf("send activities: %w", err)
	}

	return responses, nil
}

// UpdateActivity asks the adapter to replace a previously sent activity.
func (c *Context) UpdateActivity(ctx context.Context, act activity.Activity) error {
	return c.adapter.UpdateActivity(ctx, c, act)
}

// DeleteActivity asks the adapter to remove a previously sent activity.
func (c *Context) DeleteActivity(ctx context.Context, activityID string) error {
	ref := activity.GetConversationReference(c.activity)
	ref.ActivityID = activityID
	return c.adapter.DeleteActivity(ctx, c, ref)
}
