// Package announce sends an attendance poll for every newly saved concert
// and links it back to the record.
package announce

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/events"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// PollOptions are shown in model.ResponseTypes order.
var PollOptions = []string{"🎉 Going", "🤔 Interested", "😢 Not going"}

// ConcertGetter loads the concert an event refers to.
type ConcertGetter interface {
	GetConcert(ctx context.Context, id string) (*model.Concert, error)
}

// PollLinker stores the poll-to-concert linkage.
type PollLinker interface {
	LinkPoll(ctx context.Context, concertID, pollID string, messageID int64) error
}

// Config controls retry behaviour for poll sends.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

// Worker consumes concert_created events.
type Worker struct {
	events    <-chan events.Event
	concerts  ConcertGetter
	messenger messaging.Messenger
	linker    PollLinker
	cfg       Config
	log       zerolog.Logger
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(evts <-chan events.Event, concerts ConcertGetter, m messaging.Messenger, linker PollLinker, cfg Config, log zerolog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Worker{
		events:    evts,
		concerts:  concerts,
		messenger: m,
		linker:    linker,
		cfg:       cfg,
		log:       log.With().Str("component", "announcer").Logger(),
	}
}

// Run handles events until ctx is canceled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("max_attempts", w.cfg.MaxAttempts).Msg("announcer starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("announcer stopping")
			return ctx.Err()
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			if evt.Kind != events.EventConcertCreated {
				continue
			}
			if err := w.Announce(ctx, evt.ConcertID, evt.ChatID); err != nil {
				metrics.PollsPublished.WithLabelValues("failed").Inc()
				w.log.Error().Err(err).Str("concert_id", evt.ConcertID).Msg("Concert left without poll")
				continue
			}
			metrics.PollsPublished.WithLabelValues("sent").Inc()
		}
	}
}

// Announce sends the poll for one concert and links it. A concert that
// already has a poll is left alone.
func (w *Worker) Announce(ctx context.Context, concertID string, chatID int64) error {
	c, err := w.concerts.GetConcert(ctx, concertID)
	if err != nil {
		return errors.Wrap(err, "load concert")
	}
	if c.PollID != nil {
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = w.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(w.cfg.MaxAttempts-1)), ctx)

	var ref messaging.PollRef
	send := func() error {
		var err error
		ref, err = w.messenger.SendPoll(ctx, chatID, PollQuestion(c), PollOptions)
		return err
	}
	notify := func(err error, wait time.Duration) {
		w.log.Warn().Err(err).Str("concert_id", c.ID).Dur("retry_in", wait).Msg("Poll send failed")
	}
	if err := backoff.RetryNotify(send, policy, notify); err != nil {
		return errors.Wrap(err, "send poll")
	}

	// The poll is out; retrying the send now would post a duplicate.
	if err := w.linker.LinkPoll(ctx, c.ID, ref.PollID, ref.MessageID); err != nil {
		return errors.Wrapf(err, "link poll %s", ref.PollID)
	}
	w.log.Info().Str("concert_id", c.ID).Str("poll_id", ref.PollID).Msg("Poll linked")
	return nil
}

// PollQuestion renders the poll title for a concert.
func PollQuestion(c *model.Concert) string {
	q := fmt.Sprintf("🎸 %s @ %s, %s", c.ArtistName, c.Venue, c.ConcertDate.Format("2006-01-02"))
	if c.ConcertTime != nil {
		q += " " + *c.ConcertTime
	}
	return q + ". Are you going?"
}
