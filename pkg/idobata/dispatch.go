package idobata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idobridge/pkg/activity"
	"idobridge/pkg/bus"
	"idobridge/pkg/turn"

	"github.com/google/uuid"
)

const (
	messageFormat   = "html"
	maxResponseSize = 1 << 20
)

// APIError reports a non-success response from the messages API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("idobata api: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("idobata api: %s: %s", http.StatusText(e.StatusCode), e.Body)
}

// SendActivities posts each activity to its room, one request at a time and in
// order. The first failure stops the batch; the responses collected before it
// are returned alongside the error.
func (a *Adapter) SendActivities(ctx context.Context, _ *turn.Context, activities []activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, 0, len(activities))

	for i, act := range activities {
		a.log.Info("Sending message", "room_id", act.ChannelID, "content", previewText(act.Text))

		id, err := a.postMessage(ctx, act)
		if err != nil {
			a.log.Error("Failed to send idobata message", "room_id", act.ChannelID, "error", err)
			a.publish(ctx, bus.Event{Type: bus.EventSendFailed, RoomID: act.ChannelID, Error: err.Error()})
			return responses, fmt.Errorf("send activity %d of %d: %w", i+1, len(activities), err)
		}

		responses = append(responses, activity.ResourceResponse{ID: id})
		a.publish(ctx, bus.Event{Type: bus.EventActivitySent, RoomID: act.ChannelID, ActivityID: id})
	}

	return responses, nil
}

// UpdateActivity is not offered by Idobata; it makes no request.
func (a *Adapter) UpdateActivity(context.Context, *turn.Context, activity.Activity) error {
	return fmt.Errorf("idobata update activity: %w", turn.ErrNotSupported)
}

// DeleteActivity is not offered by Idobata; it makes no request.
func (a *Adapter) DeleteActivity(context.Context, *turn.Context, activity.ConversationReference) error {
	return fmt.Errorf("idobata delete activity: %w", turn.ErrNotSupported)
}

// ContinueConversation resumes a stored conversation without a stream event by
// running a synthetic continueConversation event through the same middleware
// and logic as live messages.
func (a *Adapter) ContinueConversation(ctx context.Context, ref activity.ConversationReference, logic turn.Logic) error {
	if strings.TrimSpace(ref.ChannelID) == "" {
		return errors.New("conversation reference has no channel id")
	}

	if ref.Bot.ID == "" {
		ref.Bot.ID = a.BotID()
	}
	if ref.Bot.Name == "" {
		ref.Bot.Name = a.name
	}

	resumed := activity.ApplyConversationReference(activity.Activity{
		Type:      activity.TypeEvent,
		Name:      activity.EventContinueConversation,
		Timestamp: time.Now().UTC(),
	}, ref, true)
	if resumed.ID == "" {
		resumed.ID = uuid.NewString()
	}

	return a.ProcessActivity(ctx, resumed, logic)
}

// postMessage creates one message and returns the id Idobata assigned to it.
func (a *Adapter) postMessage(ctx context.Context, act activity.Activity) (string, error) {
	if strings.TrimSpace(act.ChannelID) == "" {
		return "", errors.New("activity has no channel id")
	}

	form := url.Values{}
	form.Set("message[source]", act.Text)
	form.Set("message[room_id]", act.ChannelID)
	form.Set("message[format]", messageFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.messages, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.setAuthHeaders(req.Header)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &APIError{StatusCode: resp.StatusCode, Body: previewText(string(body))}
	}

	var created createdMessage
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if created.Message == nil || created.Message.ID == "" {
		return "", errors.New("response has no message id")
	}

	return created.Message.ID.String(), nil
}
