package app

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/config"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestOpenStorage_UnsupportedDriver(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.DBDriver = "oracle"
	_, err := OpenStorage(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestBot_ConsoleEndToEnd(t *testing.T) {
	cfg := config.NewForTesting()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := OpenStorage(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = storage.Close() }()
	require.NoError(t, storage.Pinger.HealthPing(ctx))

	out := &syncBuffer{}
	user := model.UserRef{ID: 10, Name: "ana"}
	console := messaging.NewConsole(out, messaging.Chat{ID: 100}, user)
	bot, err := NewBot(ctx, cfg, storage.Store, console, zerolog.Nop())
	require.NoError(t, err)
	bot.Start(ctx)

	script := strings.Join([]string{"/new", "Metallica", "Coliseu", "2099-10-31", "/skip", "/finish"}, "\n")
	require.NoError(t, console.Run(ctx, strings.NewReader(script), bot.Router))

	var concert *model.Concert
	require.Eventually(t, func() bool {
		list, err := bot.Concerts.ListUpcoming(ctx, time.Time{}, 10)
		if err != nil || len(list) != 1 || list[0].PollID == nil {
			return false
		}
		concert = list[0]
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "Metallica", concert.ArtistName)
	assert.Nil(t, concert.ConcertTime)
	assert.Nil(t, concert.URL)
	assert.Contains(t, out.String(), "✅ Saved Metallica @ Coliseu on 2099-10-31")
	assert.Contains(t, out.String(), *concert.PollID)

	vote := "/vote " + *concert.PollID + " 1\n/vote " + *concert.PollID + " 0\n"
	require.NoError(t, console.Run(ctx, strings.NewReader(vote), bot.Router))

	sum, err := bot.Attendance.GetResponses(ctx, concert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Counts[model.ResponseGoing])
	assert.Equal(t, 0, sum.Counts[model.ResponseInterested])

	cancel()
	bot.Wait()
}
