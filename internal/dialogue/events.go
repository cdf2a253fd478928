// Package dialogue runs the guided question-and-answer flow that collects a
// concert record from a user, one field at a time.
package dialogue

// Signal is a button-style control input.
type Signal int

const (
	SignalSkip Signal = iota + 1
	SignalCancel
	SignalFinish
	SignalConfirm
	SignalEdit
)

func (s Signal) String() string {
	switch s {
	case SignalSkip:
		return "skip"
	case SignalCancel:
		return "cancel"
	case SignalFinish:
		return "finish"
	case SignalConfirm:
		return "yes"
	case SignalEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// ParseSignal maps a control name (as carried in button payloads) to a Signal.
func ParseSignal(name string) (Signal, bool) {
	for _, s := range []Signal{SignalSkip, SignalCancel, SignalFinish, SignalConfirm, SignalEdit} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// InboundEvent is what a waiting session can receive: TextInput,
// ControlSignal or Unrecognized.
type InboundEvent interface {
	inbound()
}

// TextInput is free text typed by the user.
type TextInput struct {
	Text string
}

// ControlSignal is a pressed control button.
type ControlSignal struct {
	Signal Signal
}

// Unrecognized is any other input (stickers, photos, stale buttons).
type Unrecognized struct{}

func (TextInput) inbound()     {}
func (ControlSignal) inbound() {}
func (Unrecognized) inbound()  {}
