package messaging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// Console is a line-oriented transport for local use. Outbound messages are
// written to w; Run reads commands from r and dispatches them as updates.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	chat   Chat
	user   model.UserRef
	nextID int64
}

// NewConsole creates a console speaking as user in chat.
func NewConsole(w io.Writer, chat Chat, user model.UserRef) *Console {
	return &Console{w: w, chat: chat, user: user}
}

func (c *Console) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, format, args...)
	return err
}

func (c *Console) SendText(_ context.Context, chatID int64, text string) error {
	return c.printf("[%d] %s\n", chatID, text)
}

func (c *Console) SendButtons(_ context.Context, chatID int64, text string, rows [][]Button) error {
	var b strings.Builder
	for _, row := range rows {
		for _, btn := range row {
			fmt.Fprintf(&b, " [%s → %s]", btn.Text, btn.Data)
		}
	}
	return c.printf("[%d] %s\n     buttons:%s\n", chatID, text, b.String())
}

func (c *Console) SendPoll(_ context.Context, chatID int64, question string, options []string) (PollRef, error) {
	c.mu.Lock()
	c.nextID++
	ref := PollRef{PollID: uuid.NewString(), MessageID: c.nextID}
	c.mu.Unlock()

	var b strings.Builder
	for i, o := range options {
		fmt.Fprintf(&b, "\n     %d) %s", i, o)
	}
	return ref, c.printf("[%d] 📊 %s (poll %s)%s\n", chatID, question, ref.PollID, b.String())
}

func (c *Console) AnswerCallback(_ context.Context, _ string, text string) error {
	if text == "" {
		return nil
	}
	return c.printf("     (%s)\n", text)
}

// Run reads lines from r until EOF or ctx is done.
//
//	/skip /finish /cancel /yes /edit   dialogue controls
//	/quick <t> /confirm <t> /manual     preview buttons
//	/vote <pollID> <idx>                poll answer
//	/sticker                            non-text message
//
// Anything else is sent as a text message.
func (c *Console) Run(ctx context.Context, r io.Reader, h Handler) error {
	sc := bufio.NewScanner(r)
	var seq int
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		seq++
		cbID := strconv.Itoa(seq)
		fields := strings.Fields(line)

		switch fields[0] {
		case "/skip", "/finish", "/cancel", "/yes", "/edit":
			h.HandleCallback(ctx, Callback{ID: cbID, Chat: c.chat, From: c.user, Data: "dlg:" + strings.TrimPrefix(fields[0], "/")})
		case "/quick", "/confirm":
			if len(fields) != 2 {
				_ = c.printf("usage: %s <token>\n", fields[0])
				continue
			}
			h.HandleCallback(ctx, Callback{ID: cbID, Chat: c.chat, From: c.user, Data: strings.TrimPrefix(fields[0], "/") + ":" + fields[1]})
		case "/manual":
			h.HandleCallback(ctx, Callback{ID: cbID, Chat: c.chat, From: c.user, Data: "manual"})
		case "/vote":
			ans, err := c.parseVote(fields)
			if err != nil {
				_ = c.printf("%v\n", err)
				continue
			}
			h.HandlePollAnswer(ctx, ans)
		case "/sticker":
			h.HandleMessage(ctx, Message{Chat: c.chat, From: c.user})
		default:
			h.HandleMessage(ctx, Message{Chat: c.chat, From: c.user, Text: line, HasText: true})
		}
	}
	return errors.Wrap(sc.Err(), "read console input")
}

func (c *Console) parseVote(fields []string) (PollAnswer, error) {
	if len(fields) < 2 {
		return PollAnswer{}, errors.New("usage: /vote <pollID> [idx]")
	}
	ans := PollAnswer{PollID: fields[1], User: c.user}
	for _, f := range fields[2:] {
		idx, err := strconv.Atoi(f)
		if err != nil {
			return PollAnswer{}, errors.Errorf("invalid option %q", f)
		}
		ans.OptionIDs = append(ans.OptionIDs, idx)
	}
	return ans, nil
}
