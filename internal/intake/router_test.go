package intake

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/attendance"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/dialogue"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/extract"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/preview"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/services"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store/sqlite"
)

type sent struct {
	ChatID int64
	Text   string
	Rows   [][]messaging.Button
}

type recordingMessenger struct {
	mu      sync.Mutex
	sent    []sent
	answers []string
}

func (m *recordingMessenger) SendText(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{ChatID: chatID, Text: text})
	return nil
}

func (m *recordingMessenger) SendButtons(_ context.Context, chatID int64, text string, rows [][]messaging.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{ChatID: chatID, Text: text, Rows: rows})
	return nil
}

func (m *recordingMessenger) SendPoll(context.Context, int64, string, []string) (messaging.PollRef, error) {
	return messaging.PollRef{}, nil
}

func (m *recordingMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	return nil
}

func (m *recordingMessenger) Sent() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

func (m *recordingMessenger) Last() sent {
	s := m.Sent()
	if len(s) == 0 {
		return sent{}
	}
	return s[len(s)-1]
}

func (m *recordingMessenger) Answers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.answers...)
}

type stubExtractor struct {
	meta *model.EventMetadata
}

func (s stubExtractor) Extract(_ context.Context, url string) *model.EventMetadata {
	if s.meta == nil {
		return nil
	}
	m := *s.meta
	if m.SourceURL == "" {
		m.SourceURL = url
	}
	return &m
}

type fixture struct {
	router    *Router
	messenger *recordingMessenger
	cache     *preview.Cache
	dialogues *dialogue.Manager
	store     store.Store
	now       time.Time
}

var (
	private = messaging.Chat{ID: 100}
	group   = messaging.Chat{ID: -200, Group: true}
	ana     = model.UserRef{ID: 10, Name: "ana"}
	rui     = model.UserRef{ID: 11, Name: "rui"}
)

func newFixture(t *testing.T, meta *model.EventMetadata) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))

	f := &fixture{
		messenger: &recordingMessenger{},
		store:     sqlite.NewWithDB(db),
		now:       time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.cache = preview.New(time.Hour, clock)

	ctx, cancel := context.WithCancel(context.Background())
	saver := services.NewConcertService(f.store, nil, zerolog.Nop())
	flow := dialogue.NewFlow(saver, clock, zerolog.Nop())
	f.dialogues = dialogue.NewManager(ctx, flow, PrompterFor(f.messenger), 30*time.Minute, clock, zerolog.Nop())
	t.Cleanup(func() {
		cancel()
		f.dialogues.Wait()
	})

	f.router = NewRouter(Deps{
		Messenger:  f.messenger,
		Extractor:  stubExtractor{meta: meta},
		Cache:      f.cache,
		Dialogues:  f.dialogues,
		Saver:      saver,
		Admins:     StaticAdmins{ana.ID: true},
		Attendance: attendance.New(f.store, clock, zerolog.Nop()),
		Now:        clock,
	}, zerolog.Nop())
	return f
}

func completeMeta() *model.EventMetadata {
	return &model.EventMetadata{
		Title:     "Metallica @ Coliseu",
		SourceURL: "https://tickets.example.com/metallica",
		Date:      "2025-10-31",
	}
}

func textMsg(chat messaging.Chat, from model.UserRef, text string) messaging.Message {
	return messaging.Message{Chat: chat, From: from, Text: text, HasText: true}
}

// tokenFrom pulls the preview token out of the last preview's buttons.
func tokenFrom(t *testing.T, s sent) string {
	t.Helper()
	for _, row := range s.Rows {
		for _, b := range row {
			if tok, ok := strings.CutPrefix(b.Data, "quick:"); ok {
				return tok
			}
		}
	}
	t.Fatalf("no preview token in %+v", s)
	return ""
}

func (f *fixture) concerts(t *testing.T) []*model.Concert {
	t.Helper()
	list, err := f.store.Concerts().ListUpcoming(context.Background(), time.Time{}, 10)
	require.NoError(t, err)
	return list
}

func TestHandleMessage_LinkProducesPreview(t *testing.T) {
	f := newFixture(t, completeMeta())
	f.router.HandleMessage(context.Background(), textMsg(private, ana, "look https://tickets.example.com/metallica !"))

	last := f.messenger.Last()
	assert.Contains(t, last.Text, "Artist: Metallica")
	assert.Contains(t, last.Text, "Venue: Coliseu")
	assert.Contains(t, last.Text, "Date: 2025-10-31")
	tok := tokenFrom(t, last)
	assert.Equal(t, "confirm:"+tok, last.Rows[0][0].Data)
	assert.Equal(t, "manual", last.Rows[1][0].Data)
	assert.Equal(t, 1, f.cache.Len())
}

func TestHandleMessage_ExtractionFailureOffersManual(t *testing.T) {
	f := newFixture(t, nil)
	f.router.HandleMessage(context.Background(), textMsg(private, ana, "https://broken.example.com"))

	last := f.messenger.Last()
	assert.Equal(t, msgUnreadable, last.Text)
	require.Len(t, last.Rows, 1)
	assert.Equal(t, "manual", last.Rows[0][0].Data)
	assert.Equal(t, 0, f.cache.Len())
}

func TestHandleMessage_IgnoresChatter(t *testing.T) {
	f := newFixture(t, completeMeta())
	f.router.HandleMessage(context.Background(), textMsg(group, rui, "anyone up for beers?"))
	f.router.HandleMessage(context.Background(), messaging.Message{Chat: group, From: rui})
	assert.Empty(t, f.messenger.Sent())
}

func TestQuickAdd_SavesOnceThenExpires(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "quick:" + tok})
	list := f.concerts(t)
	require.Len(t, list, 1)
	assert.Equal(t, "Metallica", list[0].ArtistName)
	assert.Equal(t, "Coliseu", list[0].Venue)
	require.NotNil(t, list[0].URL)
	assert.Equal(t, "https://tickets.example.com/metallica", *list[0].URL)
	assert.Contains(t, f.messenger.Last().Text, "✅ Saved Metallica @ Coliseu")

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: private, From: ana, Data: "quick:" + tok})
	assert.Equal(t, msgExpired, f.messenger.Last().Text)
	assert.Len(t, f.concerts(t), 1)
}

func TestQuickAdd_AdminGateInGroups(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(group, rui, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: group, From: rui, Data: "quick:" + tok})
	assert.Contains(t, f.messenger.Answers(), msgAdminsOnly)
	assert.Empty(t, f.concerts(t))
	assert.Equal(t, 1, f.cache.Len())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: group, From: ana, Data: "quick:" + tok})
	assert.Len(t, f.concerts(t), 1)
}

func TestQuickAdd_OpenGraphStartTimeKeepsEventDay(t *testing.T) {
	page := `<html><head>
<meta property="og:title" content="Metallica @ Estadio da Luz">
<meta property="event:start_time" content="2025-10-31T20:00:00+00:00">
</head><body></body></html>`
	meta := extract.ParseMetadata(page, "https://tickets.example.com/metallica")
	f := newFixture(t, &meta)
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "quick:" + tok})
	list := f.concerts(t)
	require.Len(t, list, 1)
	assert.Equal(t, "Estadio da Luz", list[0].Venue)
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), list[0].ConcertDate.UTC())
}

func TestConfirm_ForeignTokenLooksExpired(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(group, rui, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	// ana is an admin but confirm is owner-only
	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: group, From: ana, Data: "confirm:" + tok})
	assert.Equal(t, msgExpired, f.messenger.Last().Text)
	assert.False(t, f.dialogues.Active(dialogue.Key{ChatID: group.ID, UserID: ana.ID}))
	assert.Equal(t, 1, f.cache.Len())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: group, From: rui, Data: "confirm:" + tok})
	assert.True(t, f.dialogues.Active(dialogue.Key{ChatID: group.ID, UserID: rui.ID}))
	assert.Equal(t, 0, f.cache.Len())
}

func TestQuickAdd_OwnerOnlyInPrivateChats(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: rui, Data: "quick:" + tok})
	assert.Equal(t, msgExpired, f.messenger.Last().Text)
	assert.Empty(t, f.concerts(t))

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: private, From: ana, Data: "quick:" + tok})
	assert.Len(t, f.concerts(t), 1)
}

func TestQuickAdd_IncompleteProposalStartsDialogue(t *testing.T) {
	f := newFixture(t, &model.EventMetadata{Title: "Metallica"})
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "quick:" + tok})
	assert.True(t, f.dialogues.Active(dialogue.Key{ChatID: private.ID, UserID: ana.ID}))
	assert.Empty(t, f.concerts(t))
}

func TestExpiredTokenIsUniform(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.now = f.now.Add(time.Hour)
	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "confirm:" + tok})
	expired := f.messenger.Last().Text

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: private, From: ana, Data: "confirm:never-issued"})
	assert.Equal(t, expired, f.messenger.Last().Text)
	assert.Equal(t, msgExpired, expired)
}

func TestConfirm_RunsPrefilledDialogue(t *testing.T) {
	f := newFixture(t, completeMeta())
	ctx := context.Background()
	key := dialogue.Key{ChatID: private.ID, UserID: ana.ID}
	f.router.HandleMessage(ctx, textMsg(private, ana, "https://tickets.example.com/metallica"))
	tok := tokenFrom(t, f.messenger.Last())

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "confirm:" + tok})
	require.True(t, f.dialogues.Active(key))

	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: private, From: ana, Data: "dlg:yes"})
	// a link inside a dialogue answer is text, not a new preview
	f.router.HandleMessage(ctx, textMsg(private, ana, "21:30"))
	f.router.HandleMessage(ctx, textMsg(private, ana, "see https://other.example.com"))
	f.dialogues.Wait()

	list := f.concerts(t)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ConcertTime)
	assert.Equal(t, "21:30", *list[0].ConcertTime)
	require.NotNil(t, list[0].Notes)
	assert.Equal(t, "see https://other.example.com", *list[0].Notes)
	assert.False(t, f.dialogues.Active(key))
}

func TestManual_StartsEmptyDialogue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.router.HandleCallback(ctx, messaging.Callback{ID: "1", Chat: private, From: ana, Data: "manual"})
	for _, text := range []string{"Metallica", "Coliseu", "2025-10-31"} {
		f.router.HandleMessage(ctx, textMsg(private, ana, text))
	}
	f.router.HandleCallback(ctx, messaging.Callback{ID: "2", Chat: private, From: ana, Data: "dlg:finish"})
	f.dialogues.Wait()

	list := f.concerts(t)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ConcertTime)
	assert.Nil(t, list[0].URL)
}

func TestControlWithoutDialogue(t *testing.T) {
	f := newFixture(t, nil)
	f.router.HandleCallback(context.Background(), messaging.Callback{ID: "1", Chat: private, From: ana, Data: "dlg:skip"})
	assert.Equal(t, []string{msgNoDialogue}, f.messenger.Answers())
}

func TestPrompter_RendersControls(t *testing.T) {
	m := &recordingMessenger{}
	p := PrompterFor(m)(42)

	require.NoError(t, p.Prompt(context.Background(), "Time?", []dialogue.Signal{dialogue.SignalSkip, dialogue.SignalFinish}))
	require.NoError(t, p.Prompt(context.Background(), "Hello", nil))

	s := m.Sent()
	require.Len(t, s, 2)
	require.Len(t, s[0].Rows, 1)
	assert.Equal(t, "dlg:skip", s[0].Rows[0][0].Data)
	assert.Equal(t, "dlg:finish", s[0].Rows[0][1].Data)
	assert.Nil(t, s[1].Rows)
}
