package responder

import (
	"context"
	"strings"

	"idobridge/pkg/activity"
)

// Echo repeats the message back to its sender without the bot's own mention.
type Echo struct{}

func (Echo) Name() string {
	return "echo"
}

func (Echo) Health(context.Context) error {
	return nil
}

func (Echo) Respond(_ context.Context, act activity.Activity) (string, error) {
	text := StripMention(act.Text, act.Recipient.Name)
	if text == "" {
		return "", nil
	}

	if sender := strings.TrimSpace(act.From.Name); sender != "" {
		return "@" + sender + " " + text, nil
	}
	return text, nil
}

// StripMention removes "@name" tokens addressed to the bot and collapses whitespace.
func StripMention(text string, name string) string {
	name = strings.TrimSpace(name)
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, field := range fields {
		if name != "" && strings.EqualFold(strings.TrimRight(field, ":,"), "@"+name) {
			continue
		}
		kept = append(kept, field)
	}

	return strings.Join(kept, " ")
}
