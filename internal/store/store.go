package store

import (
	"context"
	"time"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (sqlite, postgres).
type Store interface {
	Concerts() Concerts
	Responses() Responses
}

type Concerts interface {
	Create(ctx context.Context, c *model.Concert) (*model.Concert, error)
	GetByID(ctx context.Context, id string) (*model.Concert, error)
	GetByPollID(ctx context.Context, pollID string) (*model.Concert, error)
	// LinkPoll sets the poll linkage once. A second call returns model.ErrAlreadyLinked.
	LinkPoll(ctx context.Context, concertID, pollID string, messageID int64) error
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.Concert, error)
}

type Responses interface {
	// Upsert creates or overwrites the row for (ConcertID, UserID) in one statement.
	Upsert(ctx context.Context, r *model.AttendanceResponse) error
	ListByConcert(ctx context.Context, concertID string) ([]*model.AttendanceResponse, error)
}

// DateLayout is how concert dates are stored and exchanged.
const DateLayout = "2006-01-02"
