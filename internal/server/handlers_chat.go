package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/telnet2/go-practice/go-chat/internal/bridge"
	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/store"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

const (
	// defaultSessionTitle matches what the web client expects for a
	// fresh conversation.
	defaultSessionTitle = "新对话"

	resultPollInterval = 500 * time.Millisecond
	resultPollTimeout  = 30 * time.Second
)

type chatSendRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ModelType string `json:"modelType"`
}

// chatSend handles POST /chat/send. The AI call runs on the bridge; the
// handler returns as soon as the turn is queued.
func (s *Server) chatSend(w http.ResponseWriter, r *http.Request) {
	sess := authFrom(r.Context())

	var req chatSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionId and message required")
		return
	}
	kind, err := engine.ParseKind(req.ModelType)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	eng, err := s.resolveEngine(sess, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("sessionID", req.SessionID).Msg("resolve engine")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not load session")
		return
	}

	s.submitTurn(w, sess, eng, req.Message, kind, req.SessionID, false)
}

// chatSendNewSession handles POST /chat/send-new-session: create a fresh
// session, then behave like chatSend against it.
func (s *Server) chatSendNewSession(w http.ResponseWriter, r *http.Request) {
	sess := authFrom(r.Context())

	var req chatSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message required")
		return
	}
	kind, err := engine.ParseKind(req.ModelType)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	sessionID := ulid.Make().String()
	now := time.Now().UnixMilli()
	if err := s.store.PutSession(&types.Session{
		ID:       sessionID,
		UserID:   sess.userID,
		Username: sess.username,
		Title:    defaultSessionTitle,
		Time:     types.SessionTime{Created: now, Updated: now},
	}); err != nil {
		s.log.Error().Err(err).Msg("persist new session")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not create session")
		return
	}

	eng := engine.New(sess.userID, sess.username, sessionID, s.factory, s.sink, s.cfg.Limits)
	s.registry.AddSessionID(sess.userID, sessionID)
	s.registry.UpsertSession(sess.userID, sessionID, eng)

	s.submitTurn(w, sess, eng, req.Message, kind, sessionID, true)
}

// submitTurn queues the turn on the bridge and writes the accepted
// response.
func (s *Server) submitTurn(w http.ResponseWriter, sess *authSession, eng *engine.Engine, message string, kind engine.Kind, sessionID string, isNew bool) {
	if err := s.bridge.Submit(eng, message, kind); err != nil {
		if errors.Is(err, bridge.ErrBusy) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeBusy, "server busy, try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not start processing")
		return
	}

	if err := s.store.TouchSession(sess.userID, sessionID, time.Now().UnixMilli()); err != nil {
		s.log.Warn().Err(err).Str("sessionID", sessionID).Msg("touch session")
	}

	resp := map[string]any{
		"success": true,
		"message": "AI processing started",
	}
	if isNew {
		resp["sessionId"] = sessionID
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveEngine returns the live engine for the session, reloading it
// from the store when the LRU evicted it.
func (s *Server) resolveEngine(sess *authSession, sessionID string) (*engine.Engine, error) {
	if handle, ok := s.registry.GetSession(sess.userID, sessionID); ok {
		return handle.(*engine.Engine), nil
	}

	if _, err := s.store.GetSession(sess.userID, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.store.LoadMessages(sess.userID, sessionID)
	if err != nil {
		return nil, err
	}

	eng := engine.New(sess.userID, sess.username, sessionID, s.factory, s.sink, s.cfg.Limits)
	eng.Restore(msgs)
	// Concurrent sends for the same evicted session race the reload; the
	// registry keeps whichever engine lands first and everyone uses it.
	winner := s.registry.AddSessionIfAbsent(sess.userID, sessionID, eng)
	s.log.Debug().Int64("userID", sess.userID).Str("sessionID", sessionID).Msg("engine reloaded from store")
	return winner.(*engine.Engine), nil
}

// chatSessions handles GET /chat/sessions.
func (s *Server) chatSessions(w http.ResponseWriter, r *http.Request) {
	sess := authFrom(r.Context())
	ids := s.registry.ListSessionIDs(sess.userID)

	sessions := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		entry := map[string]any{"sessionId": id}
		if meta, err := s.store.GetSession(sess.userID, id); err == nil {
			entry["title"] = meta.Title
			entry["time"] = meta.Time
		}
		sessions = append(sessions, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": sessions,
	})
}

type sessionIDRequest struct {
	SessionID string `json:"sessionId"`
}

// chatHistory handles POST /chat/history.
func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	sess := authFrom(r.Context())

	var req sessionIDRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionId required")
		return
	}

	msgs, err := s.store.LoadMessages(sess.userID, req.SessionID)
	if err != nil {
		s.log.Error().Err(err).Str("sessionID", req.SessionID).Msg("load history")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not load history")
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": msgs,
	})
}

// chatGetResult handles POST /chat/get-result, the long-poll fallback
// for clients that cannot hold an SSE stream. Reading consumes the
// result.
func (s *Server) chatGetResult(w http.ResponseWriter, r *http.Request) {
	var req sessionIDRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionId required")
		return
	}

	deadline := time.Now().Add(resultPollTimeout)
	for {
		if text, ok := s.registry.GetResult(req.SessionID); ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"result":  text,
			})
			return
		}
		if time.Now().After(deadline) {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"message": "Result not ready yet",
			})
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(resultPollInterval):
		}
	}
}

type speechRequest struct {
	Text string `json:"text"`
}

// chatSpeech handles POST /chat/speech: synthesize the given text and
// return a URL to the generated audio.
func (s *Server) chatSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text required")
		return
	}

	url, err := s.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.log.Error().Err(err).Msg("speech synthesis")
		writeError(w, http.StatusBadGateway, ErrCodeInternalError, "speech synthesis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     url,
	})
}

// chatStream handles GET /chat/stream?sessionId=.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionId required")
		return
	}
	s.streamer.Serve(w, r, sessionID)
}
