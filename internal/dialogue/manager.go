package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

var (
	errIdle     = errors.New("dialogue idle timeout")
	errReplaced = errors.New("dialogue replaced by a new one")
)

// Key scopes a session to one user in one chat.
type Key struct {
	ChatID int64
	UserID int64
}

type running struct {
	session *Session
	cancel  context.CancelCauseFunc
}

// PrompterFactory returns the output channel for a chat.
type PrompterFactory func(chatID int64) Prompter

// Manager owns the live sessions. Each session runs its Flow on its own
// goroutine.
type Manager struct {
	ctx      context.Context
	flow     *Flow
	prompter PrompterFactory
	idle     time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[Key]*running
	wg       sync.WaitGroup
}

// NewManager creates a manager whose sessions live until ctx is done, they
// finish, or they sit idle for longer than idle.
func NewManager(ctx context.Context, flow *Flow, prompter PrompterFactory, idle time.Duration, now func() time.Time, log zerolog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		ctx:      ctx,
		flow:     flow,
		prompter: prompter,
		idle:     idle,
		now:      now,
		log:      log.With().Str("component", "dialogue_manager").Logger(),
		sessions: make(map[Key]*running),
	}
}

// Start begins a dialogue, replacing any session the user already has in
// that chat.
func (m *Manager) Start(owner model.UserRef, chatID int64, prefill *Prefill) {
	key := Key{ChatID: chatID, UserID: owner.ID}
	s := NewSession(owner.ID, chatID, m.prompter(chatID))
	s.touch(m.now())
	ctx, cancel := context.WithCancelCause(m.ctx)
	r := &running{session: s, cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.sessions[key]; ok {
		prev.cancel(errReplaced)
	}
	m.sessions[key] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel(nil)
		defer m.remove(key, r)

		_, outcome, err := m.flow.Run(ctx, s, owner, prefill)
		if err != nil && errors.Is(context.Cause(ctx), errIdle) {
			_ = s.out.Reply(context.WithoutCancel(ctx), "⌛ This conversation timed out. Send /new to start again.")
		}
		m.log.Debug().Int64("user_id", owner.ID).Int64("chat_id", chatID).Str("outcome", string(outcome)).Err(err).Msg("Dialogue ended")
	}()
}

func (m *Manager) remove(key Key, r *running) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[key] == r {
		delete(m.sessions, key)
	}
}

// Active reports whether the user has a live session in the chat.
func (m *Manager) Active(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok
}

// Deliver routes an inbound event to the user's session. It returns false
// when there is no session or its inbox is full.
func (m *Manager) Deliver(key Key, ev InboundEvent) bool {
	m.mu.Lock()
	r, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	r.session.touch(m.now())
	return r.session.Deliver(ev)
}

// ReapIdle cancels sessions inactive for longer than the idle timeout and
// returns how many were cancelled.
func (m *Manager) ReapIdle() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idle)
	n := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.sessions {
		if r.session.LastActive().Before(cutoff) {
			r.cancel(errIdle)
			delete(m.sessions, key)
			n++
		}
	}
	return n
}

// RunReaper calls ReapIdle every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.ReapIdle(); n > 0 {
				m.log.Info().Int("count", n).Msg("Reaped idle dialogues")
			}
		}
	}
}

// Wait blocks until every session goroutine has returned.
func (m *Manager) Wait() { m.wg.Wait() }
