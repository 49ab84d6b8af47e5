package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"idobridge/pkg/turn"
)

// allowRooms ends turns from rooms outside the allow list. An empty list allows every room.
func allowRooms(rooms []string, log *slog.Logger) turn.Middleware {
	allowed := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		if room = strings.TrimSpace(room); room != "" {
			allowed[room] = struct{}{}
		}
	}

	return turn.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next turn.Next) error {
		if len(allowed) == 0 {
			return next(ctx)
		}

		roomID := tc.Activity().ChannelID
		if _, ok := allowed[roomID]; !ok {
			log.Debug("Ignored activity from room outside allow list", "room_id", roomID, "activity_id", tc.Activity().ID)
			return nil
		}

		return next(ctx)
	})
}

func logTurns(log *slog.Logger) turn.Middleware {
	return turn.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next turn.Next) error {
		act := tc.Activity()
		startedAt := time.Now()
		log.Debug("Turn started", "activity_id", act.ID, "type", act.Type, "room_id", act.ChannelID, "sender", act.From.Name)

		err := next(ctx)
		if err != nil {
			log.Debug("Turn failed", "activity_id", act.ID, "room_id", act.ChannelID, "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
			return err
		}

		log.Debug("Turn completed", "activity_id", act.ID, "room_id", act.ChannelID, "duration_ms", time.Since(startedAt).Milliseconds(), "responded", tc.Responded())
		return nil
	})
}
