package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"idobridge/pkg/bus"
	"idobridge/pkg/config"
	"idobridge/pkg/gateway"
	"idobridge/pkg/idobata"
	"idobridge/pkg/logger"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the bot against the Idobata stream",
	Long:  "Connects to the Idobata event stream, answers mentions with the configured responder, and serves health, readiness and notify endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mb := bus.NewMessageBusSize(cfg.Gateway.QueueSize)
		adapter, err := newIdobataAdapter(cfg, mb, appLogger)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		svc, err := gateway.NewService(cfg, adapter, mb, appLogger)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		go logEvents(runCtx, mb, log)

		log.Info("Gateway started", "channel", adapter.Name(), "name", cfg.Idobata.BotName(), "responder", responderName(cfg))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func newIdobataAdapter(cfg *config.Config, mb *bus.MessageBus, log *slog.Logger) (*idobata.Adapter, error) {
	opts := []idobata.Option{}
	if mb != nil {
		opts = append(opts, idobata.WithEvents(mb))
	}

	adapter, err := idobata.NewAdapter(cfg.Idobata, log, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure idobata channel: %w", err)
	}

	return adapter, nil
}

func responderName(cfg *config.Config) string {
	if cfg.Responder.Type == "" {
		return "echo"
	}
	return cfg.Responder.Type
}

func logEvents(ctx context.Context, mb *bus.MessageBus, log *slog.Logger) {
	events, unsubscribe := mb.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	for event := range events {
		logEvent(log, event)
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{"type", event.Type, "room_id", event.RoomID, "activity_id", event.ActivityID}

	switch event.Type {
	case bus.EventSendFailed, bus.EventTurnFailed:
		log.Error("Channel event", append(attrs, "error", event.Error)...)
	case bus.EventStreamError:
		log.Warn("Channel event", append(attrs, "error", event.Error)...)
	case bus.EventSeedReceived:
		log.Info("Channel event", "type", event.Type, "bot_id", event.BotID)
	default:
		log.Debug("Channel event", attrs...)
	}
}
