// Package engine holds the per-session chat state and drives the AI
// backends. One Engine exists per (user, session) pair while the session
// is memory-resident; the registry owns that lifetime.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// MessageSink receives finished chat messages for durable persistence.
// Publishing is fire-and-forget; delivery failures never block a turn.
type MessageSink interface {
	PublishMessage(msg *types.Message)
}

// Engine is the conversation state for one chat session. Chat may be
// called from any goroutine; a mutex serializes turns so concurrent
// sends to the same session cannot interleave history.
type Engine struct {
	userID    int64
	username  string
	sessionID string

	factory backendSource
	sink    MessageSink
	limits  types.LimitsConfig
	log     zerolog.Logger

	mu      sync.Mutex
	history []*schema.Message
}

func New(userID int64, username, sessionID string, factory *Factory, sink MessageSink, limits types.LimitsConfig) *Engine {
	return &Engine{
		userID:    userID,
		username:  username,
		sessionID: sessionID,
		factory:   factory,
		sink:      sink,
		limits:    limits,
		log: logging.Component("engine").With().
			Int64("userID", userID).
			Str("sessionID", sessionID).
			Logger(),
	}
}

// SessionID returns the session this engine belongs to.
func (e *Engine) SessionID() string { return e.sessionID }

// Restore rebuilds the in-memory history from persisted messages. Meant
// for a freshly created engine; it replaces whatever history exists.
func (e *Engine) Restore(msgs []*types.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = e.history[:0]
	for _, m := range msgs {
		role := schema.Assistant
		if m.IsUser {
			role = schema.User
		}
		e.history = append(e.history, &schema.Message{Role: role, Content: m.Content})
	}
	e.log.Debug().Int("messages", len(msgs)).Msg("history restored")
}

// HistoryLen reports the number of turns held in memory.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Chat runs one full turn: record the question, ask the backend for kind,
// record and return the answer. onDelta, when non-nil, observes content
// increments as they arrive. On error the question stays in the history
// but no assistant message is recorded.
func (e *Engine) Chat(ctx context.Context, question string, kind Kind, onDelta func(string)) (string, error) {
	b, err := e.factory.Backend(ctx, kind)
	if err != nil {
		return "", err
	}

	question = TruncateToTokens(question, e.limits.MaxTokensPerMessage)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.appendLocked(schema.User, question)
	snapshot := make([]*schema.Message, len(e.history))
	copy(snapshot, e.history)

	start := time.Now()
	var answer string
	if sb, ok := b.(streamingBackend); ok && onDelta != nil && kind.Streams() {
		answer, err = sb.stream(ctx, snapshot, onDelta)
	} else {
		answer, err = b.generate(ctx, snapshot)
	}
	if err != nil {
		e.log.Error().Err(err).Str("kind", string(kind)).Msg("chat turn failed")
		return "", err
	}

	e.appendLocked(schema.Assistant, answer)
	e.log.Info().
		Str("kind", string(kind)).
		Dur("elapsed", time.Since(start)).
		Int("answerLen", len(answer)).
		Msg("chat turn complete")
	return answer, nil
}

// appendLocked records a message in memory and hands it to the sink.
func (e *Engine) appendLocked(role schema.RoleType, content string) {
	e.history = append(e.history, &schema.Message{Role: role, Content: content})
	if e.sink == nil {
		return
	}
	e.sink.PublishMessage(&types.Message{
		ID:        ulid.Make().String(),
		UserID:    e.userID,
		Username:  e.username,
		SessionID: e.sessionID,
		IsUser:    role == schema.User,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}
