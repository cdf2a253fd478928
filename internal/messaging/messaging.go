// Package messaging is the boundary to the chat platform: outbound sends and
// the inbound update shapes the rest of the bot consumes.
package messaging

import (
	"context"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// Button is an inline button; Data comes back verbatim in a Callback.
type Button struct {
	Text string
	Data string
}

// PollRef identifies a sent poll.
type PollRef struct {
	PollID    string
	MessageID int64
}

// Messenger sends to a chat platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error
	SendPoll(ctx context.Context, chatID int64, question string, options []string) (PollRef, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Chat is where an update happened.
type Chat struct {
	ID    int64
	Group bool
}

// Message is an inbound chat message. HasText is false for media, stickers
// and other non-text content.
type Message struct {
	Chat    Chat
	From    model.UserRef
	Text    string
	HasText bool
}

// Callback is a pressed inline button.
type Callback struct {
	ID   string
	Chat Chat
	From model.UserRef
	Data string
}

// PollAnswer is a vote (or vote retraction when OptionIDs is empty).
type PollAnswer struct {
	PollID    string
	User      model.UserRef
	OptionIDs []int
}

// Handler consumes inbound updates.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandleCallback(ctx context.Context, cb Callback)
	HandlePollAnswer(ctx context.Context, ans PollAnswer)
}
