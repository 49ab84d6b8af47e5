package activity

import "time"

// Activity types understood by the bot runtime.
const (
	TypeMessage = "message"
	TypeEvent   = "event"
)

// EventContinueConversation names the synthetic event used to resume a stored conversation.
const EventContinueConversation = "continueConversation"

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount describes the conversation an activity belongs to.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// Activity is one normalized conversational turn.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         string              `json:"type"`
	Name         string              `json:"name,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	ChannelData  map[string]any      `json:"channelData,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Text         string              `json:"text,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitempty"`
}

// ResourceResponse carries the identifier a channel assigned to a sent activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// ConversationReference is enough state to address a conversation again later.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
}

// IsMessage reports whether the activity carries user-visible text.
func (a Activity) IsMessage() bool {
	return a.Type == TypeMessage
}

// GetConversationReference extracts the reference needed to reply to act later.
func GetConversationReference(act Activity) ConversationReference {
	return ConversationReference{
		ActivityID:   act.ID,
		User:         act.From,
		Bot:          act.Recipient,
		Conversation: act.Conversation,
		ChannelID:    act.ChannelID,
		ServiceURL:   act.ServiceURL,
	}
}

// ApplyConversationReference addresses act using ref and returns the result.
//
// Incoming activities are addressed from the user to the bot and keep the
// referenced activity id; outgoing ones go from the bot to the user and reply to it.
func ApplyConversationReference(act Activity, ref ConversationReference, incoming bool) Activity {
	act.ChannelID = ref.ChannelID
	act.ServiceURL = ref.ServiceURL
	act.Conversation = ref.Conversation

	if incoming {
		act.From = ref.User
		act.Recipient = ref.Bot
		if ref.ActivityID != "" {
			act.ID = ref.ActivityID
		}
		return act
	}

	act.From = ref.Bot
	act.Recipient = ref.User
	if ref.ActivityID != "" {
		act.ReplyToID = ref.ActivityID
	}
	return act
}
