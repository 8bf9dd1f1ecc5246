// Package queue decouples chat handling from message persistence. Engines
// publish finished messages to a watermill topic and a small consumer
// pool drains it into the store, so a slow disk never stalls a chat turn.
package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// MessageWriter persists one chat message.
type MessageWriter interface {
	AppendMessage(msg *types.Message) error
}

// Queue is the in-process message queue. It satisfies engine.MessageSink.
type Queue struct {
	topic  string
	pubsub *gochannel.GoChannel
	writer MessageWriter
	log    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a queue and starts consumers goroutines draining topic into
// writer. Close stops them.
func New(topic string, consumers int, writer MessageWriter) (*Queue, error) {
	if consumers <= 0 {
		consumers = 1
	}
	q := &Queue{
		topic: topic,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NopLogger{},
		),
		writer: writer,
		log:    logging.Component("queue"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	// gochannel broadcasts to every subscription, so the workers share a
	// single one: each published message reaches exactly one of them.
	msgs, err := q.pubsub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	for i := 0; i < consumers; i++ {
		q.wg.Add(1)
		go q.consume(msgs)
	}
	return q, nil
}

// PublishMessage enqueues a message for persistence. It never blocks the
// caller on storage; enqueue failures are logged and dropped.
func (q *Queue) PublishMessage(msg *types.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		q.log.Error().Err(err).Str("messageID", msg.ID).Msg("encode message")
		return
	}
	wm := message.NewMessage(watermill.NewUUID(), payload)
	if err := q.pubsub.Publish(q.topic, wm); err != nil {
		q.log.Error().Err(err).Str("messageID", msg.ID).Msg("publish message")
	}
}

func (q *Queue) consume(msgs <-chan *message.Message) {
	defer q.wg.Done()
	for wm := range msgs {
		var msg types.Message
		if err := json.Unmarshal(wm.Payload, &msg); err != nil {
			q.log.Error().Err(err).Msg("decode queued message")
			wm.Ack()
			continue
		}
		if err := q.writer.AppendMessage(&msg); err != nil {
			q.log.Error().Err(err).
				Int64("userID", msg.UserID).
				Str("sessionID", msg.SessionID).
				Msg("persist message")
		}
		wm.Ack()
	}
}

// Close stops the consumers after the published backlog drains.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	err := q.pubsub.Close()
	q.cancel()
	q.wg.Wait()
	return err
}
