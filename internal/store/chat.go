package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// ErrUserExists is returned when registering a username that is taken.
var ErrUserExists = errors.New("user already exists")

// userIDCounter guards the user-id counter record.
var userIDCounter sync.Mutex

// CreateUser registers a new user and assigns it the next numeric id.
func (s *Store) CreateUser(username, passwordHash, salt string, created int64) (*types.User, error) {
	var existing types.User
	if err := s.read(&existing, "users", username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	userIDCounter.Lock()
	defer userIDCounter.Unlock()

	var nextID int64 = 1
	if err := s.read(&nextID, "meta", "next-user-id"); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &types.User{
		ID:           nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		Created:      created,
	}
	if err := s.write(user, "users", username); err != nil {
		return nil, err
	}
	if err := s.write(nextID+1, "meta", "next-user-id"); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads a user by username.
func (s *Store) GetUser(username string) (*types.User, error) {
	var user types.User
	if err := s.read(&user, "users", username); err != nil {
		return nil, err
	}
	return &user, nil
}

// PutSession stores or replaces a session record.
func (s *Store) PutSession(sess *types.Session) error {
	return s.write(sess, "sessions", formatUserID(sess.UserID), sess.ID)
}

// GetSession loads a session record.
func (s *Store) GetSession(userID int64, sessionID string) (*types.Session, error) {
	var sess types.Session
	if err := s.read(&sess, "sessions", formatUserID(userID), sessionID); err != nil {
		return nil, err
	}
	return &sess, nil
}

// TouchSession bumps a session's updated timestamp. Missing sessions are a
// no-op; the live registry may know ids the store has not seen yet.
func (s *Store) TouchSession(userID int64, sessionID string, updated int64) error {
	sess, err := s.GetSession(userID, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sess.Time.Updated = updated
	return s.PutSession(sess)
}

// LoadSessionIDs bulk-loads every (userID, sessionID) pair, ordered by user
// and session creation time. The registry calls this once at startup to
// rebuild its session index; messages stay on disk until a session is
// actually used.
func (s *Store) LoadSessionIDs() ([]types.UserSession, error) {
	userDirs, err := s.listDir("sessions")
	if err != nil {
		return nil, err
	}

	var all []types.UserSession
	for _, dir := range userDirs {
		userID, err := strconv.ParseInt(dir, 10, 64)
		if err != nil {
			continue
		}

		ids, err := s.listDir("sessions", dir)
		if err != nil {
			return nil, err
		}

		sessions := make([]*types.Session, 0, len(ids))
		for _, id := range ids {
			sess, err := s.GetSession(userID, id)
			if err != nil {
				continue
			}
			sessions = append(sessions, sess)
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].Time.Created < sessions[j].Time.Created
		})

		for _, sess := range sessions {
			all = append(all, types.UserSession{UserID: userID, SessionID: sess.ID})
		}
	}
	return all, nil
}

// AppendMessage appends a message to its session's message log. The file
// lock spans the read as well as the write, so concurrent appends to the
// same session cannot interleave and drop each other's message.
func (s *Store) AppendMessage(msg *types.Message) error {
	path := []string{"messages", formatUserID(msg.UserID), msg.SessionID}
	filePath := s.pathTo(path...)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	var messages []*types.Message
	if err := s.read(&messages, path...); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	messages = append(messages, msg)
	return s.writeLocked(messages, filePath)
}

// LoadMessages returns the ordered message history for a session. A session
// with no recorded messages yields an empty slice, not an error.
func (s *Store) LoadMessages(userID int64, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.read(&messages, "messages", formatUserID(userID), sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

func formatUserID(id int64) string {
	return fmt.Sprintf("%d", id)
}
