package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"idobridge/pkg/activity"
	"idobridge/pkg/config"
	"idobridge/pkg/responder"
	"idobridge/pkg/ui/room"

	"github.com/spf13/cobra"
)

var (
	promptText string
	senderName string
	roomTUI    bool
)

// respondCmd runs the configured responder locally, as if the text had been a
// mention in a room.
var respondCmd = &cobra.Command{
	Use:   "respond [text]",
	Short: "Try the configured responder without connecting to Idobata",
	Long:  "Loads configuration, builds the configured responder, and answers one message or starts an interactive session.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolvePrompt(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		client, err := responder.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize responder: %v\n", err)
			return
		}

		ctx := context.Background()
		if err := client.Health(ctx); err != nil {
			fmt.Printf("responder health check failed: %v\n", err)
			return
		}

		botName := cfg.Idobata.BotName()
		if prompt != "" {
			runSinglePrompt(ctx, client, botName, prompt)
			return
		}

		if roomTUI {
			info := room.Info{BotName: botName, Sender: senderName, Responder: client.Name()}
			if err := room.Run(ctx, roomReply(client, botName), info); err != nil {
				fmt.Printf("room view failed: %v\n", err)
			}
			return
		}

		runInteractive(ctx, client, botName)
	},
}

func init() {
	rootCmd.AddCommand(respondCmd)
	respondCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "message text to answer")
	respondCmd.Flags().StringVar(&senderName, "as", "you", "sender name for the simulated message")
	respondCmd.Flags().BoolVar(&roomTUI, "tui", false, "open a full-screen simulated room")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return ""
	}

	return value
}

// localMention builds the activity a room mention of the bot would produce.
func localMention(botName string, text string) activity.Activity {
	return activity.Activity{
		ID:           "local",
		Type:         activity.TypeMessage,
		ChannelID:    "local",
		From:         activity.ChannelAccount{ID: "local", Name: senderName},
		Recipient:    activity.ChannelAccount{ID: "bot", Name: botName},
		Conversation: activity.ConversationAccount{ID: "local"},
		Text:         "@" + botName + " " + text,
	}
}

func roomReply(client responder.Responder, botName string) room.ReplyFunc {
	return func(ctx context.Context, text string) (string, error) {
		return client.Respond(ctx, localMention(botName, text))
	}
}

func runSinglePrompt(ctx context.Context, client responder.Responder, botName string, prompt string) {
	response, err := client.Respond(ctx, localMention(botName, prompt))
	if err != nil {
		fmt.Printf("respond failed: %v\n", err)
		return
	}

	fmt.Println(response)
}

func runInteractive(ctx context.Context, client responder.Responder, botName string) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return
		}

		response, err := client.Respond(ctx, localMention(botName, prompt))
		if err != nil {
			fmt.Printf("respond failed: %v\n", err)
			continue
		}

		printReply(botName, response)
	}
}

func printReply(botName string, message string) {
	lines := replyLines(message)
	for _, line := range lines {
		fmt.Printf("%s: %s\n", botName, line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func replyLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
