package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"
	responderopenai "idobridge/pkg/responder/openai"
	"idobridge/pkg/responder/opencode"
)

// Responder produces the reply text for one message addressed to the bot.
// An empty reply means the bot stays silent.
type Responder interface {
	Name() string
	Health(ctx context.Context) error
	Respond(ctx context.Context, act activity.Activity) (string, error)
}

func New(cfg *config.Config) (Responder, error) {
	responderType := strings.TrimSpace(cfg.Responder.Type)
	if responderType == "" {
		responderType = "echo"
	}

	slog.Default().With("component", "responder.factory").Debug("Resolving responder", "responder", responderType)

	switch responderType {
	case "echo":
		return Echo{}, nil
	case "openai":
		return responderopenai.New(cfg)
	case "opencode":
		return opencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported responder: %s", responderType)
	}
}
