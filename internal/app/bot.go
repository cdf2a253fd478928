package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/announce"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/attendance"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/config"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/dialogue"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/events"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/extract"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/intake"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/preview"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/services"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

// Bot is the fully wired conversational side of the service.
type Bot struct {
	Router     *intake.Router
	Concerts   *services.ConcertService
	Attendance *attendance.Service
	Dialogues  *dialogue.Manager

	cache     *preview.Cache
	announcer *announce.Worker
	reapEvery time.Duration
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewBot wires every component around st and m. Sessions live until ctx is
// done.
func NewBot(ctx context.Context, cfg *config.Config, st store.Store, m messaging.Messenger, log zerolog.Logger) (*Bot, error) {
	admins, err := cfg.Admins()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(cfg.EventBuffer)
	concerts := services.NewConcertService(st, bus, log)
	att := attendance.New(st, time.Now, log)
	cache := preview.New(cfg.PreviewTTL(), time.Now)
	flow := dialogue.NewFlow(concerts, time.Now, log)
	dialogues := dialogue.NewManager(ctx, flow, intake.PrompterFor(m), cfg.DialogueIdle(), time.Now, log)
	extractor := extract.New(extract.Options{
		Timeout:      cfg.FetchTimeout(),
		MaxRedirects: cfg.FetchMaxRedirects,
		RetryWait:    time.Duration(cfg.FetchRetryWaitMS) * time.Millisecond,
	}, log.With().Str("component", "extract").Logger())

	router := intake.NewRouter(intake.Deps{
		Messenger:  m,
		Extractor:  extractor,
		Cache:      cache,
		Dialogues:  dialogues,
		Saver:      concerts,
		Admins:     intake.StaticAdmins(admins),
		Attendance: att,
	}, log)

	announcer := announce.NewWorker(bus.Subscribe(), concerts, m, att, announce.Config{
		MaxAttempts: cfg.PollMaxAttempts,
	}, log)

	reapEvery := cfg.DialogueIdle() / 4
	if reapEvery < time.Second {
		reapEvery = time.Second
	}
	return &Bot{
		Router:     router,
		Concerts:   concerts,
		Attendance: att,
		Dialogues:  dialogues,
		cache:      cache,
		announcer:  announcer,
		reapEvery:  reapEvery,
		log:        log,
	}, nil
}

// Start launches the background workers: the poll announcer, the idle
// dialogue reaper and the preview sweeper.
func (b *Bot) Start(ctx context.Context) {
	b.wg.Add(3)
	go func() {
		defer b.wg.Done()
		_ = b.announcer.Run(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.Dialogues.RunReaper(ctx, b.reapEvery)
	}()
	go func() {
		defer b.wg.Done()
		t := time.NewTicker(b.reapEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := b.cache.Sweep(); n > 0 {
					b.log.Debug().Int("count", n).Msg("Swept expired previews")
				}
			}
		}
	}()
}

// Wait blocks until the workers and every open dialogue have returned.
func (b *Bot) Wait() {
	b.wg.Wait()
	b.Dialogues.Wait()
}
