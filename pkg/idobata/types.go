package idobata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Stream event names emitted by /api/stream.
const (
	EventSeed  = "seed"
	EventEvent = "event"
	EventError = "error"
)

// TypeMessageCreated is the only domain event type the adapter translates.
const TypeMessageCreated = "message:created"

// SenderTypeBot marks messages posted by bots, including this one.
const SenderTypeBot = "Bot"

// ID is an Idobata identifier. The API sends ids as numbers, but mention lists
// and hand-written payloads may carry strings, so both decode to the same text.
type ID string

// UnmarshalJSON accepts a JSON number, string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*id = ID(text)
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(number.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Seed is the handshake payload sent once per connection.
type Seed struct {
	LastEventID ID `json:"last_event_id"`
	Records     struct {
		Bot struct {
			ID ID `json:"id"`
		} `json:"bot"`
	} `json:"records"`
}

// Event is the typed envelope carried by "event" stream messages.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData holds the record an event refers to.
type EventData struct {
	Message *Message `json:"message"`
}

// Message is a chat message as Idobata reports it.
type Message struct {
	ID            ID     `json:"id"`
	Body          string `json:"body"`
	BodyPlain     string `json:"body_plain"`
	RoomID        ID     `json:"room_id"`
	Mentions      []ID   `json:"mentions"`
	SenderID      ID     `json:"sender_id"`
	SenderName    string `json:"sender_name"`
	SenderType    string `json:"sender_type"`
	SenderIconURL string `json:"sender_icon_url"`
	CreatedAt     string `json:"created_at"`
}

// MentionsBot reports whether botID appears among the message's mention tokens.
func (m Message) MentionsBot(botID string) bool {
	if botID == "" {
		return false
	}

	for _, mention := range m.Mentions {
		if mention.String() == botID {
			return true
		}
	}
	return false
}

// createdMessage is the response body of POST /api/messages.
type createdMessage struct {
	Message *Message `json:"message"`
}
