package channel

import (
	"context"

	"idobridge/pkg/activity"
	"idobridge/pkg/turn"
)

// Handler receives one translated inbound activity. Adapters call it in the
// order events arrive, so it must hand off slow work instead of blocking.
type Handler func(context.Context, activity.Activity)

// Adapter bridges one external chat service into the bot runtime.
type Adapter interface {
	turn.Adapter

	Name() string
	Run(context.Context, Handler) error
	Use(middleware ...turn.Middleware)
	ProcessActivity(ctx context.Context, act activity.Activity, logic turn.Logic) error
	BotID() string
}
