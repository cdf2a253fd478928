package dialogue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

type recordingPrompter struct {
	mu       sync.Mutex
	prompts  []string
	replies  []string
	controls [][]Signal
}

func (p *recordingPrompter) Prompt(_ context.Context, text string, controls []Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, text)
	p.controls = append(p.controls, controls)
	return nil
}

func (p *recordingPrompter) Reply(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, text)
	return nil
}

func (p *recordingPrompter) Replies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.replies...)
}

func (p *recordingPrompter) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

type memorySaver struct {
	mu     sync.Mutex
	drafts []Draft
	err    error
}

func (s *memorySaver) Save(_ context.Context, owner model.UserRef, _ int64, d Draft) (*model.Concert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.drafts = append(s.drafts, d)
	return &model.Concert{
		ID:          "c1",
		ArtistName:  d.Artist,
		Venue:       d.Venue,
		ConcertDate: d.Date,
		ConcertTime: d.Time,
		URL:         d.URL,
		Notes:       d.Notes,
		OwnerUserID: owner.ID,
	}, nil
}

func (s *memorySaver) Saved() []Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Draft(nil), s.drafts...)
}

var fixedNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func text(s string) InboundEvent   { return TextInput{Text: s} }
func signal(s Signal) InboundEvent { return ControlSignal{Signal: s} }
func strp(s string) *string        { return &s }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestSession(events ...InboundEvent) (*Session, *recordingPrompter) {
	p := &recordingPrompter{}
	s := NewSession(10, 100, p)
	for _, ev := range events {
		s.Deliver(ev)
	}
	return s, p
}

func TestAsk_RepromptsOnceOnInvalidInput(t *testing.T) {
	s, p := newTestSession(text("a"), text("Metallica"))

	a, err := s.Ask(context.Background(), Question{Prompt: "Who?", Validate: Required("Artist name", 2)})
	require.NoError(t, err)
	assert.Equal(t, Accepted, a.Kind)
	assert.Equal(t, "Metallica", a.Value)

	replies := p.Replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "❌")
	assert.Contains(t, replies[0], "too short")
	assert.Equal(t, []string{"Who?"}, p.Prompts())
}

func TestAsk_CustomValidatorMessageIsRelayedVerbatim(t *testing.T) {
	s, p := newTestSession(text("a"), text("Metallica"))
	calls := 0
	validate := func(in string) (any, error) {
		calls++
		if len(in) < 2 {
			return nil, errors.New("❌ too short")
		}
		return in, nil
	}

	a, err := s.Ask(context.Background(), Question{Prompt: "Who?", Validate: validate})
	require.NoError(t, err)
	assert.Equal(t, "Metallica", a.Value)
	assert.Equal(t, []string{"❌ too short"}, p.Replies())
	assert.Equal(t, 2, calls)
}

func TestAsk_ControlSignals(t *testing.T) {
	tests := []struct {
		name string
		ev   InboundEvent
		want AnswerKind
	}{
		{"skip", signal(SignalSkip), Skipped},
		{"finish", signal(SignalFinish), Finished},
		{"cancel", signal(SignalCancel), Cancelled},
		{"skip word", text("skip"), Skipped},
		{"blank", text("   "), Skipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(tt.ev)
			a, err := s.Ask(context.Background(), Question{
				Prompt:   "Time?",
				Validate: Time(),
				Controls: []Signal{SignalSkip, SignalFinish, SignalCancel},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Kind)
			assert.Nil(t, a.Value)
		})
	}
}

func TestAsk_DisallowedControlAndUnrecognizedKeepWaiting(t *testing.T) {
	s, p := newTestSession(signal(SignalSkip), Unrecognized{}, text("Coliseu"))

	a, err := s.Ask(context.Background(), Question{
		Prompt:   "Where?",
		Validate: Required("Venue", 2),
		Controls: []Signal{SignalCancel},
	})
	require.NoError(t, err)
	assert.Equal(t, "Coliseu", a.Value)
	assert.Equal(t, []string{unexpectedInput, unexpectedInput}, p.Replies())
}

func TestAsk_ReturnsOnContextCancel(t *testing.T) {
	s, _ := newTestSession()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Ask(ctx, Question{Prompt: "Who?", Validate: Required("Artist name", 2)})
	assert.ErrorIs(t, err, context.Canceled)
}

func runFlow(t *testing.T, prefill *Prefill, events ...InboundEvent) (*model.Concert, Outcome, *memorySaver, *recordingPrompter) {
	t.Helper()
	saver := &memorySaver{}
	flow := NewFlow(saver, clock, zerolog.Nop())
	s, p := newTestSession(events...)
	c, outcome, err := flow.Run(context.Background(), s, model.UserRef{ID: 10, Name: "ana"}, prefill)
	require.NoError(t, err)
	return c, outcome, saver, p
}

func TestFlow_SkippedTimeAndURLPersistAsNull(t *testing.T) {
	c, outcome, saver, _ := runFlow(t, nil,
		text("Metallica"), text("Estádio da Luz"), text("2025-10-31"),
		signal(SignalSkip), text("skip"), text("bring earplugs"),
	)

	assert.Equal(t, OutcomeSaved, outcome)
	require.NotNil(t, c)
	require.Len(t, saver.Saved(), 1)
	d := saver.Saved()[0]
	assert.Equal(t, "Metallica", d.Artist)
	assert.Equal(t, "Estádio da Luz", d.Venue)
	assert.Equal(t, day(2025, 10, 31), d.Date)
	assert.Nil(t, d.Time)
	assert.Nil(t, d.URL)
	assert.Equal(t, strp("bring earplugs"), d.Notes)
}

func TestFlow_FinishShapes(t *testing.T) {
	required := []InboundEvent{text("Metallica"), text("Coliseu"), text("2025-10-31")}
	tests := []struct {
		name  string
		tail  []InboundEvent
		time  *string
		url   *string
		notes *string
	}{
		{"finish at time", []InboundEvent{signal(SignalFinish)}, nil, nil, nil},
		{"finish at url", []InboundEvent{text("21:00"), signal(SignalFinish)}, strp("21:00"), nil, nil},
		{"finish at notes", []InboundEvent{text("21:00"), text("https://example.com/e"), signal(SignalFinish)}, strp("21:00"), strp("https://example.com/e"), nil},
		{"complete", []InboundEvent{text("21:00"), text("https://example.com/e"), text("front row")}, strp("21:00"), strp("https://example.com/e"), strp("front row")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := append(append([]InboundEvent(nil), required...), tt.tail...)
			_, outcome, saver, _ := runFlow(t, nil, events...)

			assert.Equal(t, OutcomeSaved, outcome)
			require.Len(t, saver.Saved(), 1)
			d := saver.Saved()[0]
			assert.Equal(t, "Metallica", d.Artist)
			assert.Equal(t, tt.time, d.Time)
			assert.Equal(t, tt.url, d.URL)
			assert.Equal(t, tt.notes, d.Notes)
		})
	}
}

func TestFlow_CancelSavesNothing(t *testing.T) {
	c, outcome, saver, p := runFlow(t, nil, text("Metallica"), signal(SignalCancel))

	assert.Nil(t, c)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Empty(t, saver.Saved())
	replies := p.Replies()
	require.NotEmpty(t, replies)
	assert.Contains(t, replies[len(replies)-1], "Cancelled")
}

func TestFlow_PrefillConfirmSkipsKnownFields(t *testing.T) {
	prefill := &Prefill{
		Proposal: model.ConcertProposal{Artist: "Metallica", Venue: "Coliseu", Date: "2025-10-31"},
		URL:      "https://tickets.example.com/metallica",
	}
	_, outcome, saver, p := runFlow(t, prefill, text("yes"), text("21:00"), signal(SignalSkip))

	assert.Equal(t, OutcomeSaved, outcome)
	require.Len(t, saver.Saved(), 1)
	d := saver.Saved()[0]
	assert.Equal(t, "Metallica", d.Artist)
	assert.Equal(t, "Coliseu", d.Venue)
	assert.Equal(t, day(2025, 10, 31), d.Date)
	assert.Equal(t, strp("21:00"), d.Time)
	assert.Equal(t, strp("https://tickets.example.com/metallica"), d.URL)
	assert.Nil(t, d.Notes)
	// summary, time, notes
	assert.Len(t, p.Prompts(), 3)
}

func TestFlow_PrefillConfirmAsksMissingFields(t *testing.T) {
	prefill := &Prefill{Proposal: model.ConcertProposal{Artist: "Metallica"}}
	_, outcome, saver, _ := runFlow(t, prefill,
		signal(SignalConfirm), text("Coliseu"), text("2025-10-31"), signal(SignalFinish),
	)

	assert.Equal(t, OutcomeSaved, outcome)
	d := saver.Saved()[0]
	assert.Equal(t, "Metallica", d.Artist)
	assert.Equal(t, "Coliseu", d.Venue)
}

func TestFlow_PrefillEditRunsFullFlow(t *testing.T) {
	prefill := &Prefill{Proposal: model.ConcertProposal{Artist: "Metalica", Venue: "Coliseu", Date: "2025-10-31"}}
	_, outcome, saver, p := runFlow(t, prefill,
		signal(SignalEdit), text("Metallica"), text("Coliseu"), text("2025-11-01"), signal(SignalFinish),
	)

	assert.Equal(t, OutcomeSaved, outcome)
	d := saver.Saved()[0]
	assert.Equal(t, "Metallica", d.Artist)
	assert.Equal(t, day(2025, 11, 1), d.Date)
	assert.Contains(t, p.Prompts()[1], "suggested: Metalica")
}

func TestFlow_PrefillEditAsksForLink(t *testing.T) {
	prefill := &Prefill{
		Proposal: model.ConcertProposal{Artist: "Metallica", Venue: "Coliseu", Date: "2025-10-31"},
		URL:      "https://tickets.example.com/metallica",
	}
	base := []InboundEvent{signal(SignalEdit), text("Metallica"), text("Coliseu"), text("2025-10-31"), signal(SignalSkip)}

	_, outcome, saver, p := runFlow(t, prefill, append(append([]InboundEvent(nil), base...), signal(SignalSkip), signal(SignalFinish))...)
	assert.Equal(t, OutcomeSaved, outcome)
	assert.Equal(t, strp("https://tickets.example.com/metallica"), saver.Saved()[0].URL)
	prompts := p.Prompts()
	require.Len(t, prompts, 7)
	assert.Contains(t, prompts[5], "suggested: https://tickets.example.com/metallica")

	_, _, saver, _ = runFlow(t, prefill, append(append([]InboundEvent(nil), base...), text("https://venue.example.com/e"), signal(SignalFinish))...)
	assert.Equal(t, strp("https://venue.example.com/e"), saver.Saved()[0].URL)
}

func TestFlow_PrefillCancel(t *testing.T) {
	prefill := &Prefill{Proposal: model.ConcertProposal{Artist: "Metallica"}}
	_, outcome, saver, _ := runFlow(t, prefill, text("cancel"))

	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Empty(t, saver.Saved())
}

func TestFlow_SaveFailureApologises(t *testing.T) {
	saver := &memorySaver{err: errors.New("disk full")}
	flow := NewFlow(saver, clock, zerolog.Nop())
	s, p := newTestSession(text("Metallica"), text("Coliseu"), text("2025-10-31"), signal(SignalFinish))

	c, outcome, err := flow.Run(context.Background(), s, model.UserRef{ID: 10}, nil)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, OutcomeFailed, outcome)
	replies := p.Replies()
	require.NotEmpty(t, replies)
	assert.Contains(t, replies[len(replies)-1], "Sorry")
}
