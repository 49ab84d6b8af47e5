// Package room is a terminal stand-in for an Idobata room: typed lines are
// delivered to the responder as mentions and its replies are shown inline.
package room

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ReplyFunc answers one message typed into the room.
type ReplyFunc func(ctx context.Context, text string) (string, error)

// Info is shown in the room header.
type Info struct {
	BotName   string
	Sender    string
	Responder string
}

// Run blocks until the user leaves the room.
func Run(ctx context.Context, reply ReplyFunc, info Info) error {
	program := tea.NewProgram(newModel(ctx, reply, info), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := program.Run()
	return err
}
