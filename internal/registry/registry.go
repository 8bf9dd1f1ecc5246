// Package registry holds all live, in-memory state for connected users and
// their chat sessions: who is online, which chat engines are memory
// resident, the per-user session index, pending AI results, and the open
// delivery streams. Every map in this package is confined to the executor
// goroutine; nothing here is guarded by a lock and nothing outside a
// submitted unit may touch it.
package registry

import (
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// Frame is one push event for an open stream.
type Frame struct {
	Event string
	Data  any
}

// Frame event types, matching the SSE wire protocol.
const (
	FrameConnected = "connected"
	FrameResult    = "result"
	FrameEnd       = "end"
	FrameTimeout   = "timeout"
	FrameError     = "error"
)

// StreamConn is a live delivery handle for one open stream request. The
// registry never writes to the transport itself: Push hands frames to the
// goroutine that owns the connection's write path.
type StreamConn interface {
	// Alive reports whether the connection is still usable. It is checked
	// before every delivery attempt.
	Alive() bool
	// Push enqueues a frame without blocking. It reports false if the
	// connection cannot accept more frames.
	Push(f Frame) bool
}

// Registry is the concurrent session registry. All public methods may be
// called from any goroutine; they route through the confinement executor.
type Registry struct {
	exec *Executor
	log  zerolog.Logger

	// Everything below is executor-confined.
	online     map[int64]bool
	engines    map[int64]map[string]any
	sessionIDs map[int64][]string
	results    map[string]string
	streams    map[string]StreamConn
	lru        *lruCache
}

// New creates a registry bounded to capacity memory-resident sessions and
// starts its executor goroutine.
func New(capacity int) *Registry {
	r := &Registry{
		exec:       NewExecutor(),
		log:        logging.Component("registry"),
		online:     make(map[int64]bool),
		engines:    make(map[int64]map[string]any),
		sessionIDs: make(map[int64][]string),
		results:    make(map[string]string),
		streams:    make(map[string]StreamConn),
	}
	r.lru = newLRUCache(capacity, r.evict)
	go r.exec.Run()
	return r
}

// Close drains and stops the executor.
func (r *Registry) Close() {
	r.exec.Close()
}

// Submit schedules a fire-and-forget unit on the registry's executor. It
// exists for collaborators (the bridge, delta forwarding) that need
// ordering with registry mutations.
func (r *Registry) Submit(fn func()) error {
	return r.exec.Submit(fn)
}

// LoadIndex bulk-loads (userID, sessionID) pairs into the session index.
// Called once at startup from the store; engines stay unloaded until the
// sessions are actually used.
func (r *Registry) LoadIndex(pairs []types.UserSession) {
	r.exec.Call(func() error {
		for _, p := range pairs {
			r.addSessionIDLocked(p.UserID, p.SessionID)
		}
		return nil
	})
}

// AddUser marks a user online.
func (r *Registry) AddUser(userID int64) {
	r.exec.Call(func() error {
		r.online[userID] = true
		return nil
	})
}

// RemoveUser marks a user offline.
func (r *Registry) RemoveUser(userID int64) {
	r.exec.Call(func() error {
		delete(r.online, userID)
		return nil
	})
}

// IsOnline reports whether a user is currently online.
func (r *Registry) IsOnline(userID int64) bool {
	var online bool
	r.exec.Call(func() error {
		online = r.online[userID]
		return nil
	})
	return online
}

// UpsertSession inserts or replaces the engine handle for a session and
// marks it most recently used. Idempotent.
func (r *Registry) UpsertSession(userID int64, sessionID string, handle any) {
	r.exec.Call(func() error {
		sessions, ok := r.engines[userID]
		if !ok {
			sessions = make(map[string]any)
			r.engines[userID] = sessions
		}
		sessions[sessionID] = handle
		r.addSessionIDLocked(userID, sessionID)
		r.lru.touch(userID, sessionID)
		return nil
	})
}

// AddSessionIfAbsent registers handle for the session unless one is
// already resident and returns the winning handle. Concurrent callers
// racing to reload an evicted session all converge on the same engine
// instead of replacing each other's.
func (r *Registry) AddSessionIfAbsent(userID int64, sessionID string, handle any) any {
	var winner any
	r.exec.Call(func() error {
		sessions, ok := r.engines[userID]
		if !ok {
			sessions = make(map[string]any)
			r.engines[userID] = sessions
		}
		if existing, ok := sessions[sessionID]; ok {
			winner = existing
		} else {
			sessions[sessionID] = handle
			winner = handle
		}
		r.addSessionIDLocked(userID, sessionID)
		r.lru.touch(userID, sessionID)
		return nil
	})
	return winner
}

// GetSession returns the live engine handle for a session, if memory
// resident, and refreshes its recency. Repeated calls between mutations
// return the same handle.
func (r *Registry) GetSession(userID int64, sessionID string) (any, bool) {
	var (
		handle any
		ok     bool
	)
	r.exec.Call(func() error {
		handle, ok = r.engines[userID][sessionID]
		if ok {
			r.lru.touch(userID, sessionID)
		}
		return nil
	})
	return handle, ok
}

// RemoveSession drops a session's live engine and recency entry. The
// session index keeps the id; use RemoveSessionID to forget it entirely.
func (r *Registry) RemoveSession(userID int64, sessionID string) {
	r.exec.Call(func() error {
		r.removeEngineLocked(userID, sessionID)
		r.lru.remove(sessionID)
		return nil
	})
}

// AddSessionID appends a session id to a user's ordered index if absent.
func (r *Registry) AddSessionID(userID int64, sessionID string) {
	r.exec.Call(func() error {
		r.addSessionIDLocked(userID, sessionID)
		return nil
	})
}

// RemoveSessionID forgets a session id. A user whose index becomes empty
// is removed from the index entirely.
func (r *Registry) RemoveSessionID(userID int64, sessionID string) {
	r.exec.Call(func() error {
		ids := r.sessionIDs[userID]
		for i, id := range ids {
			if id == sessionID {
				r.sessionIDs[userID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(r.sessionIDs[userID]) == 0 {
			delete(r.sessionIDs, userID)
		}
		return nil
	})
}

// ListSessionIDs returns a copy of the user's session ids in insertion
// order.
func (r *Registry) ListSessionIDs(userID int64) []string {
	var ids []string
	r.exec.Call(func() error {
		ids = append(ids, r.sessionIDs[userID]...)
		return nil
	})
	return ids
}

// SetResult records a finished AI result and immediately attempts delivery.
// If a stream is attached the result and a terminal end frame are pushed
// and the pending result is cleared (at-most-once). With no listener the
// result stays pending for the long-poll fallback until read or until the
// session is evicted. Fire-and-forget: the caller does not wait.
func (r *Registry) SetResult(sessionID, text string) {
	r.exec.Submit(func() {
		r.results[sessionID] = text
		r.deliverLocked(sessionID, Frame{Event: FrameResult, Data: map[string]string{"result": text}})
	})
}

// SetErrorResult records a failed AI call so that waiting callers still
// terminate: streams get an error frame then end; the poll fallback gets
// the error text as the result.
func (r *Registry) SetErrorResult(sessionID, message string) {
	r.exec.Submit(func() {
		r.results[sessionID] = message
		r.deliverLocked(sessionID, Frame{Event: FrameError, Data: map[string]string{"message": message}})
	})
}

// deliverLocked pushes a terminal frame pair to the attached stream, if
// any, and clears the pending result on successful handoff. A refused
// push (frame buffer full) keeps the result pending so the stream's tick
// poll can still collect it.
func (r *Registry) deliverLocked(sessionID string, f Frame) {
	conn, ok := r.streams[sessionID]
	if !ok {
		return
	}
	if !conn.Alive() {
		delete(r.streams, sessionID)
		return
	}

	if !conn.Push(f) {
		return
	}
	conn.Push(Frame{Event: FrameEnd, Data: map[string]string{"message": "connection closing"}})
	delete(r.results, sessionID)
}

// PushDelta forwards one incremental token chunk to the attached stream,
// if any. Deltas are best effort and never stored.
func (r *Registry) PushDelta(sessionID, delta string) {
	r.exec.Submit(func() {
		conn, ok := r.streams[sessionID]
		if !ok || !conn.Alive() {
			return
		}
		conn.Push(Frame{Event: FrameResult, Data: map[string]string{"result": delta}})
	})
}

// GetResult takes the pending result for a session, removing it. The
// second call for the same result returns nothing.
func (r *Registry) GetResult(sessionID string) (string, bool) {
	var (
		text string
		ok   bool
	)
	r.exec.Call(func() error {
		text, ok = r.results[sessionID]
		if ok {
			delete(r.results, sessionID)
		}
		return nil
	})
	return text, ok
}

// RemoveResult discards a pending result without reading it.
func (r *Registry) RemoveResult(sessionID string) {
	r.exec.Call(func() error {
		delete(r.results, sessionID)
		return nil
	})
}

// AttachStream registers the delivery handle for a session. A second
// attach for the same session id silently replaces the first; the
// superseded connection discovers it on its next liveness tick.
func (r *Registry) AttachStream(sessionID string, conn StreamConn) {
	r.exec.Call(func() error {
		r.streams[sessionID] = conn
		return nil
	})
}

// DetachStream removes the delivery handle, but only if conn is still the
// registered one; a superseded connection must not detach its replacement.
func (r *Registry) DetachStream(sessionID string, conn StreamConn) {
	r.exec.Call(func() error {
		if r.streams[sessionID] == conn {
			delete(r.streams, sessionID)
		}
		return nil
	})
}

// StreamAttached reports whether the given conn is the registered handle
// for the session.
func (r *Registry) StreamAttached(sessionID string, conn StreamConn) bool {
	var attached bool
	r.exec.Call(func() error {
		attached = r.streams[sessionID] == conn
		return nil
	})
	return attached
}

// LiveSessions returns the number of memory-resident engines.
func (r *Registry) LiveSessions() int {
	var n int
	r.exec.Call(func() error {
		n = r.lru.len()
		return nil
	})
	return n
}

// evict is the LRU eviction cascade. Runs on the executor via touch. The
// live engine is dropped; the session index keeps the id so the session
// stays listable and reloadable from durable storage. Any pending result
// for the evicted session is dropped with it.
func (r *Registry) evict(userID int64, sessionID string) {
	r.removeEngineLocked(userID, sessionID)
	delete(r.results, sessionID)
	r.log.Info().
		Int64("userID", userID).
		Str("sessionID", sessionID).
		Msg("evicted least-recently-used session")
}

func (r *Registry) removeEngineLocked(userID int64, sessionID string) {
	sessions, ok := r.engines[userID]
	if !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.engines, userID)
	}
}

func (r *Registry) addSessionIDLocked(userID int64, sessionID string) {
	for _, id := range r.sessionIDs[userID] {
		if id == sessionID {
			return
		}
	}
	r.sessionIDs[userID] = append(r.sessionIDs[userID], sessionID)
}
