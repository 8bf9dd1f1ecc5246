package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
)

// TestClient is a cookie-carrying API client for one simulated browser.
type TestClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewTestClient creates a client with its own cookie jar.
func NewTestClient(baseURL string) (*TestClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &TestClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Jar: jar},
	}, nil
}

// PostJSON posts a JSON body and decodes the JSON response.
func (c *TestClient) PostJSON(ctx context.Context, path string, body any) (int, map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// GetJSON gets a path and decodes the JSON response.
func (c *TestClient) GetJSON(ctx context.Context, path string) (int, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	return c.do(req)
}

func (c *TestClient) do(req *http.Request) (int, map[string]any, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, decoded, nil
}

// Register creates an account.
func (c *TestClient) Register(ctx context.Context, username, password string) (int, map[string]any, error) {
	return c.PostJSON(ctx, "/register", map[string]string{"username": username, "password": password})
}

// Login signs the client in; the session cookie lands in the jar.
func (c *TestClient) Login(ctx context.Context, username, password string) (int, map[string]any, error) {
	return c.PostJSON(ctx, "/login", map[string]string{"username": username, "password": password})
}

// Logout signs the client out.
func (c *TestClient) Logout(ctx context.Context) (int, map[string]any, error) {
	return c.PostJSON(ctx, "/user/logout", map[string]string{})
}

// SendNewSession starts a conversation and returns the new session id.
func (c *TestClient) SendNewSession(ctx context.Context, message, modelType string) (string, error) {
	status, body, err := c.PostJSON(ctx, "/chat/send-new-session", map[string]string{
		"message":   message,
		"modelType": modelType,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("send-new-session: status %d: %v", status, body)
	}
	id, _ := body["sessionId"].(string)
	if id == "" {
		return "", fmt.Errorf("send-new-session: no sessionId in %v", body)
	}
	return id, nil
}

// Send posts a message into an existing session.
func (c *TestClient) Send(ctx context.Context, sessionID, message, modelType string) (int, map[string]any, error) {
	return c.PostJSON(ctx, "/chat/send", map[string]string{
		"sessionId": sessionID,
		"message":   message,
		"modelType": modelType,
	})
}

// Sessions lists the client's session ids in creation order.
func (c *TestClient) Sessions(ctx context.Context) ([]string, error) {
	status, body, err := c.GetJSON(ctx, "/chat/sessions")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("sessions: status %d", status)
	}
	raw, _ := body["sessions"].([]any)
	ids := make([]string, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			if id, ok := m["sessionId"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// GetResult long-polls for a pending result.
func (c *TestClient) GetResult(ctx context.Context, sessionID string) (int, map[string]any, error) {
	return c.PostJSON(ctx, "/chat/get-result", map[string]string{"sessionId": sessionID})
}
