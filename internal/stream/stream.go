// Package stream serves the per-session SSE result feed. Each open
// request walks a small state machine: attach to the registry, forward
// pushed frames, poll for an already-pending result on every tick, and
// give up after the timeout budget.
package stream

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/internal/registry"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// ResultSource is the registry surface the streamer needs.
type ResultSource interface {
	AttachStream(sessionID string, conn registry.StreamConn)
	DetachStream(sessionID string, conn registry.StreamConn)
	StreamAttached(sessionID string, conn registry.StreamConn) bool
	GetResult(sessionID string) (string, bool)
}

// Conn buffers frames pushed by the registry for one open stream. Push
// never blocks; the serving goroutine drains the buffer.
type Conn struct {
	frames chan registry.Frame
	closed atomic.Bool
}

func newConn() *Conn {
	return &Conn{frames: make(chan registry.Frame, 16)}
}

func (c *Conn) Alive() bool { return !c.closed.Load() }

func (c *Conn) Push(f registry.Frame) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.frames <- f:
		return true
	default:
		return false
	}
}

// Streamer serves SSE result streams.
type Streamer struct {
	source ResultSource
	tick   time.Duration
	budget int
	log    zerolog.Logger
}

func New(source ResultSource, cfg types.StreamConfig) *Streamer {
	return &Streamer{
		source: source,
		tick:   time.Duration(cfg.TickMillis) * time.Millisecond,
		budget: cfg.TimeoutTicks,
		log:    logging.Component("stream"),
	}
}

// Serve runs one stream until the result is delivered, the budget runs
// out, or the client goes away. It always detaches before returning.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flush()

	if err := sse.writeEvent(registry.FrameConnected, map[string]string{
		"sessionId": sessionID,
		"status":    "connected",
	}); err != nil {
		return
	}

	conn := newConn()
	s.source.AttachStream(sessionID, conn)
	defer func() {
		conn.closed.Store(true)
		s.source.DetachStream(sessionID, conn)
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	remaining := s.budget
	for {
		select {
		case <-r.Context().Done():
			s.log.Debug().Str("sessionID", sessionID).Msg("client disconnected")
			return

		case f := <-conn.frames:
			if err := sse.writeEvent(f.Event, f.Data); err != nil {
				return
			}
			if f.Event == registry.FrameEnd {
				return
			}

		case <-ticker.C:
			// A newer stream for the same session supersedes this one.
			if !s.source.StreamAttached(sessionID, conn) {
				s.log.Debug().Str("sessionID", sessionID).Msg("stream superseded")
				return
			}
			// A result may have landed while no stream was attached.
			if text, ok := s.source.GetResult(sessionID); ok {
				sse.writeEvent(registry.FrameResult, map[string]string{"result": text})
				sse.writeEvent(registry.FrameEnd, map[string]string{"message": "connection closing"})
				return
			}
			remaining--
			if remaining <= 0 {
				s.log.Info().Str("sessionID", sessionID).Msg("stream timed out")
				sse.writeEvent(registry.FrameTimeout, map[string]string{"message": "timeout waiting for result"})
				sse.writeEvent(registry.FrameEnd, map[string]string{"message": "connection closing"})
				return
			}
		}
	}
}
