package intake

import (
	"context"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/dialogue"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
)

var controlLabels = map[dialogue.Signal]string{
	dialogue.SignalSkip:    "⏭ Skip",
	dialogue.SignalFinish:  "🏁 Save now",
	dialogue.SignalCancel:  "✖ Cancel",
	dialogue.SignalConfirm: "✅ Yes",
	dialogue.SignalEdit:    "✏️ Edit",
}

type chatPrompter struct {
	m      messaging.Messenger
	chatID int64
}

// PrompterFor renders dialogue prompts as chat messages with one button per
// control.
func PrompterFor(m messaging.Messenger) dialogue.PrompterFactory {
	return func(chatID int64) dialogue.Prompter {
		return &chatPrompter{m: m, chatID: chatID}
	}
}

func (p *chatPrompter) Prompt(ctx context.Context, text string, controls []dialogue.Signal) error {
	if len(controls) == 0 {
		return p.m.SendText(ctx, p.chatID, text)
	}
	row := make([]messaging.Button, 0, len(controls))
	for _, c := range controls {
		row = append(row, messaging.Button{Text: controlLabels[c], Data: "dlg:" + c.String()})
	}
	return p.m.SendButtons(ctx, p.chatID, text, [][]messaging.Button{row})
}

func (p *chatPrompter) Reply(ctx context.Context, text string) error {
	return p.m.SendText(ctx, p.chatID, text)
}
