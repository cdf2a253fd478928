package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// Draft is the concert data collected so far.
type Draft struct {
	Artist string
	Venue  string
	Date   time.Time
	Time   *string
	URL    *string
	Notes  *string
}

// Prefill seeds a dialogue from a link preview.
type Prefill struct {
	Proposal model.ConcertProposal
	URL      string
}

// Saver persists a finished draft.
type Saver interface {
	Save(ctx context.Context, owner model.UserRef, chatID int64, d Draft) (*model.Concert, error)
}

// Outcome is how a dialogue ended.
type Outcome string

const (
	OutcomeSaved     Outcome = "saved"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// Flow is the concert-collection script.
type Flow struct {
	saver Saver
	now   func() time.Time
	log   zerolog.Logger
}

// NewFlow builds a flow. now feeds relative date parsing.
func NewFlow(saver Saver, now func() time.Time, log zerolog.Logger) *Flow {
	if now == nil {
		now = time.Now
	}
	return &Flow{saver: saver, now: now, log: log.With().Str("component", "dialogue").Logger()}
}

// errStop unwinds the flow after a cancel or finish answer.
type errStop struct{ kind AnswerKind }

func (e errStop) Error() string { return "dialogue stopped: " + e.kind.String() }

// Run drives one session to completion. The returned concert is non-nil only
// for OutcomeSaved. A non-nil error accompanies OutcomeFailed and
// OutcomeAborted.
func (f *Flow) Run(ctx context.Context, s *Session, owner model.UserRef, prefill *Prefill) (*model.Concert, Outcome, error) {
	d, err := f.collect(ctx, s, prefill)
	var stop errStop
	switch {
	case errors.As(err, &stop) && stop.kind == Cancelled:
		metrics.DialogueOutcomes.WithLabelValues(string(OutcomeCancelled)).Inc()
		_ = s.out.Reply(ctx, "🚫 Cancelled. Nothing was saved.")
		return nil, OutcomeCancelled, nil
	case errors.As(err, &stop) && stop.kind == Finished:
	case err != nil:
		metrics.DialogueOutcomes.WithLabelValues(string(OutcomeAborted)).Inc()
		return nil, OutcomeAborted, err
	}

	c, err := f.saver.Save(ctx, owner, s.ChatID, d)
	if err != nil {
		f.log.Error().Err(err).Int64("user_id", owner.ID).Msg("Failed to save concert")
		metrics.DialogueOutcomes.WithLabelValues(string(OutcomeFailed)).Inc()
		_ = s.out.Reply(ctx, "😞 Sorry, something went wrong while saving the concert. Please try again later.")
		return nil, OutcomeFailed, err
	}
	metrics.DialogueOutcomes.WithLabelValues(string(OutcomeSaved)).Inc()
	_ = s.out.Reply(ctx, "✅ Saved "+Summary(c))
	return c, OutcomeSaved, nil
}

func (f *Flow) collect(ctx context.Context, s *Session, prefill *Prefill) (Draft, error) {
	var d Draft
	urlKnown := false

	if prefill != nil {
		if prefill.URL != "" {
			u := prefill.URL
			d.URL = &u
			urlKnown = true
		}
		a, err := s.Ask(ctx, Question{
			Prompt:   prefillSummary(prefill) + "\n\nSave this concert?",
			Validate: confirmChoice,
			Controls: []Signal{SignalConfirm, SignalEdit, SignalCancel},
		})
		if err != nil {
			return d, err
		}
		choice := SignalCancel
		if a.Kind == Accepted {
			choice, _ = a.Value.(Signal)
		}
		switch choice {
		case SignalConfirm:
			f.seed(&d, prefill.Proposal)
		case SignalEdit:
			// the link is asked again; skipping keeps the prefilled one
			urlKnown = false
		default:
			return d, errStop{Cancelled}
		}
	}

	if d.Artist == "" {
		v, err := f.askRequired(ctx, s, Question{
			Prompt:   "🎤 Who is playing?" + hint(prefill, func(p model.ConcertProposal) string { return p.Artist }),
			Validate: Required("Artist name", 2),
		})
		if err != nil {
			return d, err
		}
		d.Artist = v.(string)
	}
	if d.Venue == "" {
		v, err := f.askRequired(ctx, s, Question{
			Prompt:   "📍 Where is it?" + hint(prefill, func(p model.ConcertProposal) string { return p.Venue }),
			Validate: Required("Venue", 2),
		})
		if err != nil {
			return d, err
		}
		d.Venue = v.(string)
	}
	if d.Date.IsZero() {
		v, err := f.askRequired(ctx, s, Question{
			Prompt:   "📅 When is it? (YYYY-MM-DD or e.g. \"next friday\")" + hint(prefill, func(p model.ConcertProposal) string { return p.Date }),
			Validate: Date(f.now),
		})
		if err != nil {
			return d, err
		}
		d.Date = v.(time.Time)
	}

	urlPrompt := "🔗 Link to the event page?"
	if d.URL != nil {
		urlPrompt += fmt.Sprintf("\n(suggested: %s)", *d.URL)
	}
	tail := []struct {
		question Question
		dst      **string
	}{
		{Question{Prompt: "🕘 What time does it start? (HH:mm)", Validate: Time()}, &d.Time},
		{Question{Prompt: urlPrompt, Validate: URL()}, &d.URL},
		{Question{Prompt: "📝 Any notes?", Validate: Notes()}, &d.Notes},
	}
	for i, step := range tail {
		if i == 1 && urlKnown {
			continue
		}
		step.question.Controls = []Signal{SignalSkip, SignalFinish, SignalCancel}
		a, err := s.Ask(ctx, step.question)
		if err != nil {
			return d, err
		}
		switch a.Kind {
		case Accepted:
			v := a.Value.(string)
			*step.dst = &v
		case Cancelled, Finished:
			return d, errStop{a.Kind}
		}
	}
	return d, nil
}

func (f *Flow) askRequired(ctx context.Context, s *Session, q Question) (any, error) {
	q.Controls = []Signal{SignalCancel}
	a, err := s.Ask(ctx, q)
	if err != nil {
		return nil, err
	}
	if a.Kind != Accepted {
		return nil, errStop{a.Kind}
	}
	return a.Value, nil
}

// seed copies proposal fields that pass validation into d. Fields that fail
// are left empty and asked for later.
func (f *Flow) seed(d *Draft, p model.ConcertProposal) {
	if v, err := Required("Artist name", 2)(p.Artist); err == nil {
		d.Artist = v.(string)
	}
	if v, err := Required("Venue", 2)(p.Venue); err == nil {
		d.Venue = v.(string)
	}
	if p.Date != "" {
		if v, err := Date(f.now)(p.Date); err == nil {
			d.Date = v.(time.Time)
		}
	}
}

func hint(p *Prefill, field func(model.ConcertProposal) string) string {
	if p == nil {
		return ""
	}
	if v := field(p.Proposal); v != "" {
		return fmt.Sprintf("\n(suggested: %s)", v)
	}
	return ""
}

func prefillSummary(p *Prefill) string {
	var b strings.Builder
	b.WriteString("🔎 Here is what I found:\n")
	fmt.Fprintf(&b, "🎤 Artist: %s\n", orUnknown(p.Proposal.Artist))
	fmt.Fprintf(&b, "📍 Venue: %s\n", orUnknown(p.Proposal.Venue))
	fmt.Fprintf(&b, "📅 Date: %s", orUnknown(p.Proposal.Date))
	if p.URL != "" {
		fmt.Fprintf(&b, "\n🔗 %s", p.URL)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// Summary renders a saved concert in one line.
func Summary(c *model.Concert) string {
	s := fmt.Sprintf("%s @ %s on %s", c.ArtistName, c.Venue, c.ConcertDate.Format("2006-01-02"))
	if c.ConcertTime != nil {
		s += " at " + *c.ConcertTime
	}
	return s
}
