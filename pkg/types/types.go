// Package types provides the core data types for the go-chat server.
package types

// User represents a registered account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Salt         string `json:"salt"`
	Created      int64  `json:"created"`
}

// Session represents a conversation session between a user and the AI.
type Session struct {
	ID       string      `json:"id"`
	UserID   int64       `json:"userID"`
	Username string      `json:"username,omitempty"`
	Title    string      `json:"title"`
	Time     SessionTime `json:"time"`
}

// SessionTime contains timestamps for a session.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Message is a single chat message, either from the user or the assistant.
type Message struct {
	ID        string `json:"id"`
	UserID    int64  `json:"userID"`
	Username  string `json:"username,omitempty"`
	SessionID string `json:"sessionID"`
	IsUser    bool   `json:"isUser"`
	Content   string `json:"content"`
	// Timestamp is unix milliseconds; messages are ordered by it.
	Timestamp int64 `json:"ts"`
}

// UserSession pairs a user id with one of its session ids. The registry
// bulk-loads these at startup to rebuild the session index.
type UserSession struct {
	UserID    int64  `json:"userID"`
	SessionID string `json:"sessionID"`
}
