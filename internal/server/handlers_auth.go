package server

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/telnet2/go-practice/go-chat/internal/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// register handles POST /register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "username and password required")
		return
	}

	salt, err := newSalt()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not create user")
		return
	}
	user, err := s.store.CreateUser(req.Username, hashPassword(salt, req.Password), salt, time.Now().UnixMilli())
	if errors.Is(err, store.ErrUserExists) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "username already taken")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", req.Username).Msg("create user")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not create user")
		return
	}

	s.log.Info().Int64("userID", user.ID).Str("username", user.Username).Msg("user registered")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"userId":   user.ID,
		"username": user.Username,
	})
}

// login handles POST /login. A user may hold at most one live login; a
// second login while online is refused.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	user, err := s.store.GetUser(req.Username)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("username", req.Username).Msg("load user")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}
	if !verifyPassword(user.Salt, req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password")
		return
	}
	if s.registry.IsOnline(user.ID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "user already logged in")
		return
	}

	s.registry.AddUser(user.ID)
	s.auth.Create(w, user.ID, user.Username)
	s.log.Info().Int64("userID", user.ID).Str("username", user.Username).Msg("user logged in")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"userId":   user.ID,
		"username": user.Username,
	})
}

// logout handles POST /user/logout.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.auth.Destroy(w, r)
	if ok {
		s.registry.RemoveUser(sess.userID)
		s.log.Info().Int64("userID", sess.userID).Msg("user logged out")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func verifyPassword(salt, password, wantHash string) bool {
	got := hashPassword(salt, password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}
