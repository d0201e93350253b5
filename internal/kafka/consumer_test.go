package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []int64
	done    chan struct{}
	want    int
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.commits = append(f.commits, m.Offset)
	}
	if len(f.commits) == f.want {
		close(f.done)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_FailedMessageIsRetriedBeforeLaterOffsetsCommit(t *testing.T) {
	r := &fakeReader{
		queue: []kafka.Message{{Partition: 0, Offset: 10}, {Partition: 0, Offset: 11}},
		done:  make(chan struct{}),
		want:  2,
	}
	c := newConsumer(r, 4, nil)
	c.retryBase, c.retryMax = time.Millisecond, time.Millisecond

	var (
		mu      sync.Mutex
		handled []int64
		failed  bool
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		if m.Offset == 10 && !failed {
			failed = true
			return errors.New("db down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx, h) }()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages were not committed")
	}
	cancel()
	require.NoError(t, <-errc)

	assert.Equal(t, []int64{10, 10, 11}, handled)
	assert.Equal(t, []int64{10, 11}, r.commits)
}

func TestConsumer_CancelLeavesFailingMessageUncommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 3}}, done: make(chan struct{}), want: 1}
	c := newConsumer(r, 1, nil)
	c.retryBase, c.retryMax = time.Millisecond, 2*time.Millisecond

	attempts := make(chan struct{}, 100)
	h := func(context.Context, kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("still down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx, h) }()

	for i := 0; i < 3; i++ {
		<-attempts
	}
	cancel()
	require.NoError(t, <-errc)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.commits)
}
