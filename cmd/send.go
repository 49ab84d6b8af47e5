package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"
	"idobridge/pkg/logger"
	"idobridge/pkg/turn"

	"github.com/spf13/cobra"
)

var sendRoomID string

var sendCmd = &cobra.Command{
	Use:   "send --room ID [text]",
	Short: "Post one message to an Idobata room",
	Long:  "Posts a single message to a room through the messages API and prints the id Idobata assigned to it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)

		adapter, err := newIdobataAdapter(cfg, nil, appLogger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sent, err := sendMessage(ctx, adapter, sendRoomID, strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), sent.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendRoomID, "room", "r", "", "room id to post to")
	_ = sendCmd.MarkFlagRequired("room")
}

// sendMessage posts text into roomID outside of any turn.
func sendMessage(ctx context.Context, adapter turn.Adapter, roomID string, text string) (activity.ResourceResponse, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return activity.ResourceResponse{}, errors.New("room id is required")
	}
	if strings.TrimSpace(text) == "" {
		return activity.ResourceResponse{}, errors.New("message text is required")
	}

	responses, err := adapter.SendActivities(ctx, nil, []activity.Activity{{
		Type:         activity.TypeMessage,
		ChannelID:    roomID,
		Conversation: activity.ConversationAccount{ID: roomID},
		Text:         text,
	}})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if len(responses) == 0 {
		return activity.ResourceResponse{}, errors.New("no message was created")
	}

	return responses[0], nil
}
