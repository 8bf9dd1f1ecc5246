package testutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEEvent is one parsed Server-Sent Event.
type SSEEvent struct {
	Type string
	Data string
}

// SSEClient reads a chat result stream.
type SSEClient struct {
	events chan SSEEvent
	cancel context.CancelFunc
	body   io.ReadCloser
}

// OpenStream connects to /chat/stream for the session using the given
// client's cookies and starts reading events in the background.
func OpenStream(ctx context.Context, tc *TestClient, sessionID string) (*SSEClient, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		tc.BaseURL+"/chat/stream?sessionId="+sessionID, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := tc.HTTP.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: content type %q", ct)
	}

	c := &SSEClient{
		events: make(chan SSEEvent, 64),
		cancel: cancel,
		body:   resp.Body,
	}
	go c.read(resp.Body)
	return c, nil
}

func (c *SSEClient) read(body io.Reader) {
	defer close(c.events)
	var cur SSEEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.Type != "" {
				c.events <- cur
				cur = SSEEvent{}
			}
		}
	}
}

// Next returns the next event or an error after timeout.
func (c *SSEClient) Next(timeout time.Duration) (SSEEvent, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return SSEEvent{}, fmt.Errorf("stream closed")
		}
		return ev, nil
	case <-time.After(timeout):
		return SSEEvent{}, fmt.Errorf("no event within %s", timeout)
	}
}

// WaitFor consumes events until one of the given type arrives.
func (c *SSEClient) WaitFor(eventType string, timeout time.Duration) (SSEEvent, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return SSEEvent{}, fmt.Errorf("no %q event within %s", eventType, timeout)
		}
		ev, err := c.Next(remaining)
		if err != nil {
			return SSEEvent{}, err
		}
		if ev.Type == eventType {
			return ev, nil
		}
	}
}

// Close tears the stream down.
func (c *SSEClient) Close() {
	c.cancel()
	c.body.Close()
}
