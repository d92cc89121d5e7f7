package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func TestProducerFlushesInboxOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, 16)

	// queued before the loop starts, written during the drain
	for i := 0; i < 5; i++ {
		p.Publish([]byte("o1"), []byte(`{}`))
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	assert.Equal(t, 5, w.count())
	assert.True(t, w.closed)
	assert.Zero(t, p.Dropped())
}

func TestProducerAccountsForEveryPublishDuringShutdown(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	const publishers = 64
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Publish([]byte("o1"), []byte(`{}`))
		}()
		if i == publishers/2 {
			cancel()
		}
	}
	wg.Wait()
	p.WaitClosed()

	require.True(t, w.closed)
	assert.Equal(t, publishers, w.count()+int(p.Dropped()))

	p.Publish([]byte("late"), []byte(`{}`))
	assert.Equal(t, publishers+1, w.count()+int(p.Dropped()))
}
