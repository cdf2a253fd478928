package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	today := time.Now().UTC().Truncate(24 * time.Hour)

	// Concerts
	tm := "21:00"
	c, err := s.Concerts().Create(ctx, &model.Concert{
		ArtistName:  "Metallica",
		Venue:       "Estádio da Luz",
		ConcertDate: today.AddDate(0, 0, 10),
		ConcertTime: &tm,
		OwnerUserID: 42,
	})
	if err != nil {
		t.Fatalf("CreateConcert: %v", err)
	}
	if c.ID == "" || c.CreationTime.IsZero() {
		t.Fatalf("CreateConcert: missing id or creation time: %+v", c)
	}
	got, err := s.Concerts().GetByID(ctx, c.ID)
	if err != nil || got.ArtistName != "Metallica" || got.ConcertTime == nil || *got.ConcertTime != "21:00" {
		t.Fatalf("GetConcert: got=%+v err=%v", got, err)
	}
	if got.URL != nil || got.Notes != nil || got.PollID != nil {
		t.Fatalf("GetConcert: expected null optional fields, got %+v", got)
	}
	if !got.ConcertDate.Equal(today.AddDate(0, 0, 10)) {
		t.Fatalf("GetConcert: date mismatch: %v", got.ConcertDate)
	}
	if _, err := s.Concerts().GetByID(ctx, "missing-"+uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetConcert missing: want ErrNotFound, got %v", err)
	}

	// Poll linkage happens once
	pollID := "poll-" + uuid.New().String()
	if err := s.Concerts().LinkPoll(ctx, c.ID, pollID, 777); err != nil {
		t.Fatalf("LinkPoll: %v", err)
	}
	if err := s.Concerts().LinkPoll(ctx, c.ID, "other-"+pollID, 778); !errors.Is(err, model.ErrAlreadyLinked) {
		t.Fatalf("LinkPoll twice: want ErrAlreadyLinked, got %v", err)
	}
	if err := s.Concerts().LinkPoll(ctx, "missing-"+uuid.New().String(), "p", 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("LinkPoll missing: want ErrNotFound, got %v", err)
	}
	byPoll, err := s.Concerts().GetByPollID(ctx, pollID)
	if err != nil || byPoll.ID != c.ID || byPoll.PollMessageID == nil || *byPoll.PollMessageID != 777 {
		t.Fatalf("GetByPollID: got=%+v err=%v", byPoll, err)
	}
	if _, err := s.Concerts().GetByPollID(ctx, "unknown-poll"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByPollID unknown: want ErrNotFound, got %v", err)
	}

	// Upcoming excludes past concerts
	if _, err := s.Concerts().Create(ctx, &model.Concert{ArtistName: "Old", Venue: "Gone", ConcertDate: today.AddDate(0, 0, -3), OwnerUserID: 1}); err != nil {
		t.Fatalf("CreateConcert past: %v", err)
	}
	upcoming, err := s.Concerts().ListUpcoming(ctx, today, 50)
	if err != nil {
		t.Fatalf("ListUpcoming: %v", err)
	}
	for _, u := range upcoming {
		if u.ConcertDate.Before(today) {
			t.Fatalf("ListUpcoming returned past concert %+v", u)
		}
	}
	if len(upcoming) == 0 {
		t.Fatalf("ListUpcoming: expected at least one concert")
	}

	// Responses: overwrite keeps exactly one row per user
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Responses().Upsert(ctx, &model.AttendanceResponse{ConcertID: c.ID, UserID: 10, UserName: "ana", ResponseType: model.ResponseGoing, UpdatedAt: now}); err != nil {
		t.Fatalf("Upsert going: %v", err)
	}
	if err := s.Responses().Upsert(ctx, &model.AttendanceResponse{ConcertID: c.ID, UserID: 10, ResponseType: model.ResponseNotGoing, UpdatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("Upsert not_going: %v", err)
	}
	if err := s.Responses().Upsert(ctx, &model.AttendanceResponse{ConcertID: c.ID, UserID: 11, UserName: "rui", ResponseType: model.ResponseInterested, UpdatedAt: now}); err != nil {
		t.Fatalf("Upsert other user: %v", err)
	}
	rs, err := s.Responses().ListByConcert(ctx, c.ID)
	if err != nil || len(rs) != 2 {
		t.Fatalf("ListByConcert: n=%d err=%v", len(rs), err)
	}
	for _, r := range rs {
		if r.UserID == 10 && (r.ResponseType != model.ResponseNotGoing || r.UserName != "ana") {
			t.Fatalf("user 10: want not_going/ana, got %+v", r)
		}
	}

	// Concurrent upserts on one key never produce duplicates
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt, _ := model.ResponseTypeForOption(i % 3)
			errs <- s.Responses().Upsert(ctx, &model.AttendanceResponse{ConcertID: c.ID, UserID: 99, ResponseType: rt, UpdatedAt: time.Now().UTC()})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Upsert: %v", err)
		}
	}
	rs, err = s.Responses().ListByConcert(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByConcert after concurrent upserts: %v", err)
	}
	count := 0
	for _, r := range rs {
		if r.UserID == 99 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for user 99, got %d", count)
	}
}
