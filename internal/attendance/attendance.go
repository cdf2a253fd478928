// Package attendance maps poll answers back to concerts and keeps one
// response per user per concert.
package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
)

// Result describes what happened to one poll answer.
type Result string

const (
	ResultRecorded    Result = "recorded"
	ResultUnknownPoll Result = "unknown_poll"
	ResultBadOption   Result = "bad_option"
	ResultRetracted   Result = "retracted"
)

// Service reconciles poll answers into attendance responses.
type Service struct {
	concerts  store.Concerts
	responses store.Responses
	now       func() time.Time
	log       zerolog.Logger
}

func New(s store.Store, now func() time.Time, log zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		concerts:  s.Concerts(),
		responses: s.Responses(),
		now:       now,
		log:       log.With().Str("component", "attendance").Logger(),
	}
}

// LinkPoll records which poll belongs to a concert. It fails with
// model.ErrAlreadyLinked if the concert already has a poll.
func (s *Service) LinkPoll(ctx context.Context, concertID, pollID string, messageID int64) error {
	if concertID == "" || pollID == "" {
		return errors.Wrap(model.ErrValidation, "concert id and poll id are required")
	}
	if err := s.concerts.LinkPoll(ctx, concertID, pollID, messageID); err != nil {
		return errors.Wrapf(err, "link poll %s to concert %s", pollID, concertID)
	}
	return nil
}

// RecordAnswer upserts the response for the concert linked to pollID. An
// unknown poll or an option outside the three fixed answers is dropped with a
// log line and a nil error.
func (s *Service) RecordAnswer(ctx context.Context, pollID string, user model.UserRef, optionIndex int) (Result, error) {
	c, err := s.concerts.GetByPollID(ctx, pollID)
	if errors.Is(err, model.ErrNotFound) {
		s.log.Debug().Str("poll_id", pollID).Int64("user_id", user.ID).Msg("Answer for unknown poll dropped")
		return s.count(ResultUnknownPoll), nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "lookup poll %s", pollID)
	}

	rt, ok := model.ResponseTypeForOption(optionIndex)
	if !ok {
		s.log.Warn().Str("poll_id", pollID).Int("option", optionIndex).Msg("Answer with out-of-range option dropped")
		return s.count(ResultBadOption), nil
	}

	err = s.responses.Upsert(ctx, &model.AttendanceResponse{
		ConcertID:    c.ID,
		UserID:       user.ID,
		UserName:     user.Name,
		ResponseType: rt,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		return "", errors.Wrapf(err, "record answer for concert %s", c.ID)
	}
	return s.count(ResultRecorded), nil
}

// HandlePollAnswer applies a transport poll answer. Only the first selected
// option counts; an empty selection is a retraction and leaves the stored
// response unchanged.
func (s *Service) HandlePollAnswer(ctx context.Context, ans messaging.PollAnswer) (Result, error) {
	if len(ans.OptionIDs) == 0 {
		s.log.Debug().Str("poll_id", ans.PollID).Int64("user_id", ans.User.ID).Msg("Vote retracted; keeping last response")
		return s.count(ResultRetracted), nil
	}
	return s.RecordAnswer(ctx, ans.PollID, ans.User, ans.OptionIDs[0])
}

func (s *Service) count(r Result) Result {
	metrics.AttendanceAnswers.WithLabelValues(string(r)).Inc()
	return r
}

// Summary groups a concert's responses by type.
type Summary struct {
	ConcertID string                                             `json:"concertId"`
	Counts    map[model.ResponseType]int                         `json:"counts"`
	Members   map[model.ResponseType][]*model.AttendanceResponse `json:"members"`
}

// GetResponses returns the concert's responses grouped by type. Every
// response type is present in Counts, zero or not.
func (s *Service) GetResponses(ctx context.Context, concertID string) (*Summary, error) {
	if _, err := s.concerts.GetByID(ctx, concertID); err != nil {
		return nil, err
	}
	rows, err := s.responses.ListByConcert(ctx, concertID)
	if err != nil {
		return nil, errors.Wrapf(err, "list responses for concert %s", concertID)
	}
	sum := &Summary{
		ConcertID: concertID,
		Counts:    make(map[model.ResponseType]int, len(model.ResponseTypes)),
		Members:   make(map[model.ResponseType][]*model.AttendanceResponse, len(model.ResponseTypes)),
	}
	for _, rt := range model.ResponseTypes {
		sum.Counts[rt] = 0
		sum.Members[rt] = []*model.AttendanceResponse{}
	}
	for _, r := range rows {
		sum.Counts[r.ResponseType]++
		sum.Members[r.ResponseType] = append(sum.Members[r.ResponseType], r)
	}
	return sum, nil
}
