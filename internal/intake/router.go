// Package intake routes inbound chat updates: links become previews,
// preview buttons start or skip the guided dialogue, and everything a user
// types while a dialogue is open goes to that dialogue.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/attendance"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/concertinfo"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/dialogue"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/extract"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/preview"
)

const (
	msgExpired     = "⌛ This preview has expired. Send the link again."
	msgUnreadable  = "😕 I couldn't read that page. Do you want to add the concert manually?"
	msgAdminsOnly  = "🔒 Only group admins can quick-add concerts."
	msgSaveFailed  = "😞 Sorry, something went wrong while saving the concert. Please try again later."
	msgNoDialogue  = "This conversation has already ended."
	msgInboxFull   = "⏳ Slow down a little, I'm still processing your previous answers."
	callbackManual = "manual"
)

// Extractor fetches page metadata; nil means nothing usable was found.
type Extractor interface {
	Extract(ctx context.Context, url string) *model.EventMetadata
}

// AdminChecker decides who may quick-add in group chats.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chat messaging.Chat, user model.UserRef) bool
}

// StaticAdmins is an AdminChecker backed by a fixed set of user IDs.
type StaticAdmins map[int64]bool

func (a StaticAdmins) IsAdmin(_ context.Context, _ messaging.Chat, user model.UserRef) bool {
	return a[user.ID]
}

// PollAnswerHandler reconciles poll votes.
type PollAnswerHandler interface {
	HandlePollAnswer(ctx context.Context, ans messaging.PollAnswer) (attendance.Result, error)
}

// Deps groups the Router's collaborators.
type Deps struct {
	Messenger  messaging.Messenger
	Extractor  Extractor
	Cache      *preview.Cache
	Dialogues  *dialogue.Manager
	Saver      dialogue.Saver
	Admins     AdminChecker
	Attendance PollAnswerHandler
	Now        func() time.Time
}

// Router implements messaging.Handler.
type Router struct {
	Deps
	log zerolog.Logger
}

var _ messaging.Handler = (*Router)(nil)

func NewRouter(d Deps, log zerolog.Logger) *Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Admins == nil {
		d.Admins = StaticAdmins{}
	}
	return &Router{Deps: d, log: log.With().Str("component", "intake").Logger()}
}

func (r *Router) HandleMessage(ctx context.Context, msg messaging.Message) {
	key := dialogue.Key{ChatID: msg.Chat.ID, UserID: msg.From.ID}
	if r.Dialogues.Active(key) {
		var ev dialogue.InboundEvent = dialogue.Unrecognized{}
		if msg.HasText {
			ev = dialogue.TextInput{Text: msg.Text}
		}
		if !r.Dialogues.Deliver(key, ev) {
			r.send(ctx, msg.Chat.ID, msgInboxFull)
		}
		return
	}
	if !msg.HasText {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "/new" || strings.HasPrefix(text, "/new ") || text == "/add" {
		r.Dialogues.Start(msg.From, msg.Chat.ID, nil)
		return
	}

	link, ok := extract.FindURL(text)
	if !ok {
		return
	}
	r.preview(ctx, msg.Chat.ID, msg.From, link)
}

func (r *Router) preview(ctx context.Context, chatID int64, user model.UserRef, link string) {
	meta := r.Extractor.Extract(ctx, link)
	if meta == nil {
		r.log.Debug().Str("url", link).Msg("No metadata; offering manual entry")
		r.buttons(ctx, chatID, msgUnreadable, [][]messaging.Button{{{Text: "✍️ Add manually", Data: callbackManual}}})
		return
	}

	proposal := concertinfo.Parse(*meta, meta.RawMarkup)
	stored := *meta
	stored.RawMarkup = ""
	token := preview.NewToken(user.ID, r.Now())
	r.Cache.Put(token, preview.Entry{Token: token, OwnerID: user.ID, Metadata: stored, Proposal: proposal})

	r.buttons(ctx, chatID, previewText(stored, proposal), [][]messaging.Button{
		{{Text: "✅ Review & save", Data: "confirm:" + token}, {Text: "⚡ Quick add", Data: "quick:" + token}},
		{{Text: "✍️ Add manually", Data: callbackManual}},
	})
}

func (r *Router) HandleCallback(ctx context.Context, cb messaging.Callback) {
	action, arg, _ := strings.Cut(cb.Data, ":")
	switch action {
	case "dlg":
		r.control(ctx, cb, arg)
	case "confirm":
		r.ack(ctx, cb.ID, "")
		entry, ok := r.take(ctx, cb.Chat.ID, arg, func(e preview.Entry) bool {
			return e.OwnerID == cb.From.ID
		})
		if !ok {
			return
		}
		r.Dialogues.Start(cb.From, cb.Chat.ID, prefillFrom(entry))
	case "quick":
		r.quickAdd(ctx, cb, arg)
	case callbackManual:
		r.ack(ctx, cb.ID, "")
		r.Dialogues.Start(cb.From, cb.Chat.ID, nil)
	default:
		r.log.Debug().Str("data", cb.Data).Msg("Unknown callback ignored")
		r.ack(ctx, cb.ID, "")
	}
}

func (r *Router) control(ctx context.Context, cb messaging.Callback, name string) {
	key := dialogue.Key{ChatID: cb.Chat.ID, UserID: cb.From.ID}
	sig, ok := dialogue.ParseSignal(name)
	if !ok || !r.Dialogues.Active(key) {
		r.ack(ctx, cb.ID, msgNoDialogue)
		return
	}
	r.ack(ctx, cb.ID, "")
	if !r.Dialogues.Deliver(key, dialogue.ControlSignal{Signal: sig}) {
		r.send(ctx, cb.Chat.ID, msgInboxFull)
	}
}

func (r *Router) quickAdd(ctx context.Context, cb messaging.Callback, token string) {
	if cb.Chat.Group && !r.Admins.IsAdmin(ctx, cb.Chat, cb.From) {
		r.ack(ctx, cb.ID, msgAdminsOnly)
		return
	}
	r.ack(ctx, cb.ID, "")
	entry, ok := r.take(ctx, cb.Chat.ID, token, func(e preview.Entry) bool {
		// group callers reaching here are admins
		return e.OwnerID == cb.From.ID || cb.Chat.Group
	})
	if !ok {
		return
	}

	draft, complete := r.draftFrom(entry)
	if !complete {
		r.Dialogues.Start(cb.From, cb.Chat.ID, prefillFrom(entry))
		return
	}
	c, err := r.Saver.Save(ctx, cb.From, cb.Chat.ID, draft)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", cb.From.ID).Msg("Quick add failed")
		r.send(ctx, cb.Chat.ID, msgSaveFailed)
		return
	}
	r.send(ctx, cb.Chat.ID, "✅ Saved "+dialogue.Summary(c))
}

// draftFrom builds a savable draft when artist, venue and date were all
// guessed and the date parses.
func (r *Router) draftFrom(e preview.Entry) (dialogue.Draft, bool) {
	p := e.Proposal
	if !p.Complete() {
		return dialogue.Draft{}, false
	}
	v, err := dialogue.Date(r.Now)(p.Date)
	if err != nil {
		return dialogue.Draft{}, false
	}
	d := dialogue.Draft{Artist: p.Artist, Venue: p.Venue, Date: v.(time.Time)}
	if e.Metadata.SourceURL != "" {
		u := e.Metadata.SourceURL
		d.URL = &u
	}
	return d, true
}

// take consumes a preview the caller is allowed to use. Foreign tokens get
// the expired reply and stay claimable by their owner.
func (r *Router) take(ctx context.Context, chatID int64, token string, allow func(preview.Entry) bool) (preview.Entry, bool) {
	entry, ok := r.Cache.TakeIf(token, allow)
	if !ok {
		r.send(ctx, chatID, msgExpired)
	}
	return entry, ok
}

func (r *Router) HandlePollAnswer(ctx context.Context, ans messaging.PollAnswer) {
	if _, err := r.Attendance.HandlePollAnswer(ctx, ans); err != nil {
		r.log.Error().Err(err).Str("poll_id", ans.PollID).Msg("Failed to record poll answer")
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string) {
	if err := r.Messenger.SendText(ctx, chatID, text); err != nil {
		r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Send failed")
	}
}

func (r *Router) buttons(ctx context.Context, chatID int64, text string, rows [][]messaging.Button) {
	if err := r.Messenger.SendButtons(ctx, chatID, text, rows); err != nil {
		r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Send failed")
	}
}

func (r *Router) ack(ctx context.Context, callbackID, text string) {
	if err := r.Messenger.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug().Err(err).Msg("Answer callback failed")
	}
}

func prefillFrom(e preview.Entry) *dialogue.Prefill {
	return &dialogue.Prefill{Proposal: e.Proposal, URL: e.Metadata.SourceURL}
}

func previewText(meta model.EventMetadata, p model.ConcertProposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 %s\n", meta.Title)
	fmt.Fprintf(&b, "🎤 Artist: %s\n", orUnknown(p.Artist))
	fmt.Fprintf(&b, "📍 Venue: %s\n", orUnknown(p.Venue))
	fmt.Fprintf(&b, "📅 Date: %s", orUnknown(p.Date))
	if meta.SourceURL != "" {
		fmt.Fprintf(&b, "\n🔗 %s", meta.SourceURL)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
