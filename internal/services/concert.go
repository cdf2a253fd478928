package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/dialogue"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/events"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

type ConcertService struct {
	store store.Store
	bus   *events.Bus
	log   zerolog.Logger
}

func NewConcertService(s store.Store, bus *events.Bus, log zerolog.Logger) *ConcertService {
	return &ConcertService{store: s, bus: bus, log: log.With().Str("component", "concert_service").Logger()}
}

// Save persists a collected draft and announces it. A full event bus only
// costs the poll, not the record.
func (s *ConcertService) Save(ctx context.Context, owner model.UserRef, chatID int64, d dialogue.Draft) (*model.Concert, error) {
	c, err := s.store.Concerts().Create(ctx, &model.Concert{
		ArtistName:  d.Artist,
		Venue:       d.Venue,
		ConcertDate: d.Date,
		ConcertTime: d.Time,
		URL:         d.URL,
		Notes:       d.Notes,
		OwnerUserID: owner.ID,
	})
	if err != nil {
		return nil, err
	}
	if s.bus != nil && !s.bus.Publish(events.Event{Kind: events.EventConcertCreated, ConcertID: c.ID, ChatID: chatID}) {
		s.log.Warn().Str("concert_id", c.ID).Msg("Event bus full; poll will not be sent")
	}
	return c, nil
}

func (s *ConcertService) GetConcert(ctx context.Context, id string) (*model.Concert, error) {
	return s.store.Concerts().GetByID(ctx, id)
}

func (s *ConcertService) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Concert, error) {
	return s.store.Concerts().ListUpcoming(ctx, from, limit)
}
