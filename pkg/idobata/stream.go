package idobata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"idobridge/pkg/activity"
	"idobridge/pkg/bus"
	"idobridge/pkg/channel"
	"idobridge/pkg/turn"
)

// StreamEvent is one named event read from the server-push connection.
// Transport failures arrive as EventError with Err set.
type StreamEvent struct {
	Name string
	Data []byte
	Err  error
}

// Stream produces the events of one long-lived server-push connection.
//
// Subscribe calls handle for every event in arrival order from a single
// goroutine and returns when ctx is done or the transport gives up.
type Stream interface {
	Subscribe(ctx context.Context, handle func(StreamEvent)) error
}

// Run connects to the event stream and passes every message addressed to the
// bot to handler. It returns nil once ctx is cancelled.
//
// handler runs on the stream goroutine, in the order events arrive.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	source := a.source
	if source == nil {
		source = newSSEStream(a.streamURL(), a.headers(), a.httpClient)
	}

	a.log.Info("Idobata stream connecting", "endpoint", a.stream, "name", a.name)

	err := source.Subscribe(ctx, func(event StreamEvent) {
		a.handleStreamEvent(ctx, event, handler)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("idobata stream: %w", err)
	}

	return errors.New("idobata stream closed")
}

// Listen runs the stream and processes each matching activity through the
// middleware and logic in its own goroutine.
func (a *Adapter) Listen(ctx context.Context, logic turn.Logic) error {
	return a.Run(ctx, func(ctx context.Context, act activity.Activity) {
		go func() {
			if err := a.ProcessActivity(ctx, act, logic); err != nil {
				a.log.Error("Failed to process activity", "activity_id", act.ID, "room_id", act.ChannelID, "error", err)
			}
		}()
	})
}

func (a *Adapter) handleStreamEvent(ctx context.Context, event StreamEvent, handler channel.Handler) {
	switch event.Name {
	case EventSeed:
		a.handleSeed(ctx, event.Data)
	case EventEvent:
		act, ok := a.handleEvent(event.Data)
		if !ok {
			return
		}

		a.log.Info("Received message", "room_id", act.ChannelID, "sender_id", act.From.ID, "message_id", act.ID, "content", previewText(act.Text))
		a.publish(ctx, bus.Event{Type: bus.EventActivityReceived, RoomID: act.ChannelID, ActivityID: act.ID})
		handler(ctx, act)
	case EventError:
		message := errorMessage(event)
		a.log.Warn("Idobata stream error", "error", message)
		a.publish(ctx, bus.Event{Type: bus.EventStreamError, Error: message})
	default:
		a.log.Debug("Ignoring stream event", "event", event.Name)
	}
}

// handleSeed records the bot identity announced by the handshake. Later seeds
// (after a reconnect) overwrite it.
func (a *Adapter) handleSeed(ctx context.Context, data []byte) {
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		a.log.Warn("Ignoring malformed seed", "error", err)
		return
	}

	botID := seed.Records.Bot.ID.String()
	if botID == "" {
		a.log.Warn("Ignoring seed without bot id", "last_event_id", seed.LastEventID.String())
		return
	}

	a.setBotID(botID)
	a.log.Info("Idobata seed received", "bot_id", botID, "last_event_id", seed.LastEventID.String())
	a.publish(ctx, bus.Event{Type: bus.EventSeedReceived, BotID: botID})
}

// handleEvent decodes a domain event and translates it when it is a new
// message mentioning the bot from someone other than a bot.
func (a *Adapter) handleEvent(data []byte) (activity.Activity, bool) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		a.log.Warn("Ignoring malformed event", "error", err)
		return activity.Activity{}, false
	}

	if event.Type != TypeMessageCreated {
		return activity.Activity{}, false
	}

	message := event.Data.Message
	if message == nil {
		a.log.Warn("Ignoring message event without message", "type", event.Type)
		return activity.Activity{}, false
	}

	if message.SenderType == SenderTypeBot {
		return activity.Activity{}, false
	}

	botID := a.BotID()
	if !message.MentionsBot(botID) {
		a.log.Debug("Ignoring message not addressed to bot", "room_id", message.RoomID.String(), "message_id", message.ID.String())
		return activity.Activity{}, false
	}

	return a.translate(*message, botID), true
}

// translate maps an Idobata message onto an activity addressed to the bot.
// The conversation is keyed by sender; replies are routed by channel (room).
func (a *Adapter) translate(message Message, botID string) activity.Activity {
	channelData := map[string]any{}
	if message.CreatedAt != "" {
		channelData["created_at"] = message.CreatedAt
	}
	if message.SenderIconURL != "" {
		channelData["sender_icon_url"] = message.SenderIconURL
	}

	return activity.Activity{
		ID:          message.ID.String(),
		Type:        activity.TypeMessage,
		ChannelID:   message.RoomID.String(),
		ChannelData: channelData,
		From: activity.ChannelAccount{
			ID:   message.SenderID.String(),
			Name: message.SenderName,
		},
		Recipient: activity.ChannelAccount{
			ID:   botID,
			Name: a.name,
		},
		Conversation: activity.ConversationAccount{
			ID: message.SenderID.String(),
		},
		Text:      message.BodyPlain,
		Timestamp: time.Now().UTC(),
	}
}

func errorMessage(event StreamEvent) string {
	if event.Err != nil {
		return event.Err.Error()
	}
	if len(event.Data) > 0 {
		return previewText(string(event.Data))
	}
	return "unknown stream error"
}
