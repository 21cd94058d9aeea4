package app

import (
	"context"
	"log"

	"awards/bot/internal/util"
)

// LogMessenger writes outgoing messages to the process log instead of a chat
// platform. Used when no adapter is wired up, and in local development.
type LogMessenger struct{}

func (LogMessenger) Send(ctx context.Context, channelID, text string) (string, error) {
	log.Printf("message -> %s: %s", channelID, text)
	return util.NewID("msg"), nil
}

func (LogMessenger) Edit(ctx context.Context, channelID, messageID, text string) error {
	log.Printf("edit %s in %s: %s", messageID, channelID, text)
	return nil
}
