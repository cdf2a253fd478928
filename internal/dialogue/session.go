package dialogue

import (
	"context"
	"sync/atomic"
	"time"
)

const inboxSize = 16

// Prompter delivers dialogue output to the user's chat.
type Prompter interface {
	// Prompt shows a question together with the control buttons it accepts.
	Prompt(ctx context.Context, text string, controls []Signal) error
	// Reply sends plain text (validation errors, confirmations).
	Reply(ctx context.Context, text string) error
}

// AnswerKind says how a question was resolved.
type AnswerKind int

const (
	Accepted AnswerKind = iota + 1
	Skipped
	Cancelled
	Finished
)

func (k AnswerKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Answer is the resolved result of one Ask. Value is set only for Accepted.
type Answer struct {
	Kind  AnswerKind
	Value any
}

// Question is a single step in a dialogue.
type Question struct {
	Prompt   string
	Validate Validator
	// Controls lists the buttons offered with the prompt. Skip, Cancel and
	// Finish resolve to their AnswerKind; any other control resolves to
	// Accepted with the Signal as the value.
	Controls []Signal
}

func (q Question) allows(s Signal) bool {
	for _, c := range q.Controls {
		if c == s {
			return true
		}
	}
	return false
}

// Session is one user's conversation. Ask suspends until an inbound event
// arrives through Deliver.
type Session struct {
	UserID int64
	ChatID int64

	out        Prompter
	inbox      chan InboundEvent
	lastActive atomic.Int64
}

// NewSession creates a session writing through out.
func NewSession(userID, chatID int64, out Prompter) *Session {
	return &Session{
		UserID: userID,
		ChatID: chatID,
		out:    out,
		inbox:  make(chan InboundEvent, inboxSize),
	}
}

// Deliver queues an event for the session. It never blocks and returns false
// when the inbox is full.
func (s *Session) Deliver(ev InboundEvent) bool {
	select {
	case s.inbox <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) touch(t time.Time) { s.lastActive.Store(t.UnixNano()) }

// LastActive returns the time of the last delivered event.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Ask prompts q and waits for a valid answer. Invalid text gets the
// validator's message and the wait continues, so one Ask may span many
// inbound events. It returns ctx's error if the session is torn down.
func (s *Session) Ask(ctx context.Context, q Question) (Answer, error) {
	if err := s.out.Prompt(ctx, q.Prompt, q.Controls); err != nil {
		return Answer{}, err
	}
	for {
		var ev InboundEvent
		select {
		case <-ctx.Done():
			return Answer{}, ctx.Err()
		case ev = <-s.inbox:
		}

		switch e := ev.(type) {
		case ControlSignal:
			if !q.allows(e.Signal) {
				break
			}
			switch e.Signal {
			case SignalSkip:
				return Answer{Kind: Skipped}, nil
			case SignalCancel:
				return Answer{Kind: Cancelled}, nil
			case SignalFinish:
				return Answer{Kind: Finished}, nil
			default:
				return Answer{Kind: Accepted, Value: e.Signal}, nil
			}
		case TextInput:
			v, err := q.Validate(e.Text)
			if err != nil {
				if rerr := s.out.Reply(ctx, err.Error()); rerr != nil {
					return Answer{}, rerr
				}
				continue
			}
			if v == nil {
				return Answer{Kind: Skipped}, nil
			}
			return Answer{Kind: Accepted, Value: v}, nil
		}

		if err := s.out.Reply(ctx, unexpectedInput); err != nil {
			return Answer{}, err
		}
	}
}

const unexpectedInput = "🤔 I was expecting a text answer or one of the buttons."
