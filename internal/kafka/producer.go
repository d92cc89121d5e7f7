package kafka

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from one goroutine.
// Writes are async; delivery failures are logged from the writer callback.
//
// After shutdown starts, Publish drops the message and counts it. Every
// message accepted before that point is written before the writer closes.
type Producer struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}

	mu       sync.RWMutex
	closing  bool
	inflight sync.WaitGroup
	dropped  atomic.Int64
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				slog.Error("kafka write failed", "topic", topic, "messages", len(msgs), "err", err)
			}
		},
	}
	return newProducer(w, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	return &Producer{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the write loop until ctx is cancelled, then flushes what is
// left in the inbox and closes the writer.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case m := <-p.inbox:
				p.write(m)
			case <-ctx.Done():
				p.shutdown()
				return
			}
		}
	}()
}

func (p *Producer) shutdown() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()

	// senders already past the closing check may be blocked on a full
	// inbox, so keep draining until they are all done
	go func() {
		p.inflight.Wait()
		close(p.inbox)
	}()
	for m := range p.inbox {
		p.write(m)
	}

	if err := p.w.Close(); err != nil {
		slog.Error("kafka writer close", "err", err)
	}
	if n := p.dropped.Load(); n > 0 {
		slog.Warn("producer stopped with dropped messages", "dropped", n)
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		slog.Error("kafka enqueue failed", "key", string(m.Key), "err", err)
	}
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}

	p.mu.RLock()
	if p.closing {
		p.mu.RUnlock()
		p.dropped.Add(1)
		slog.Warn("producer stopped, message dropped", "key", string(key))
		return
	}
	p.inflight.Add(1)
	p.mu.RUnlock()

	defer p.inflight.Done()
	p.inbox <- m
}

// Dropped reports how many messages were rejected because the producer was
// shutting down.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// WaitClosed blocks until the loop has flushed and closed the writer.
func (p *Producer) WaitClosed() { <-p.done }
