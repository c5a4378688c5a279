package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/commitlog-cdc/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func change(offset int64) event.Event {
	return &event.ChangeRecord{
		Info: event.SourceInfo{Position: event.Position{Segment: "CommitLog-6-123.log", Offset: offset}},
	}
}

func offsets(events []event.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Position().Offset
	}
	return out
}

func TestQueue_FIFOAndCapacity(t *testing.T) {
	q := New(10, 0)
	ctx := context.Background()

	assert.Equal(t, 10, q.TotalCapacity())
	assert.Equal(t, 10, q.RemainingCapacity())

	for i := int64(0); i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, change(i)))
	}
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 5, q.RemainingCapacity())

	events, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, offsets(events))
	assert.Equal(t, 10, q.RemainingCapacity())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_MaxBatch(t *testing.T) {
	q := New(10, 3)
	ctx := context.Background()

	for i := int64(0); i < 7; i++ {
		require.NoError(t, q.Enqueue(ctx, change(i)))
	}

	var batches [][]int64
	for q.Len() > 0 {
		events, err := q.Drain(ctx)
		require.NoError(t, err)
		batches = append(batches, offsets(events))
	}
	assert.Equal(t, [][]int64{{0, 1, 2}, {3, 4, 5}, {6}}, batches)
}

func TestQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := New(2, 0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, change(0)))
	require.NoError(t, q.Enqueue(ctx, change(1)))
	assert.Equal(t, 0, q.RemainingCapacity())

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, change(2))
	}()

	select {
	case <-done:
		t.Fatal("Enqueue should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	events, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, offsets(events))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not resume after drain")
	}

	events, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, offsets(events))
}

func TestQueue_EnqueueHonoursContext(t *testing.T) {
	q := New(1, 0)
	require.NoError(t, q.Enqueue(context.Background(), change(0)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, change(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DrainBlocksUntilEvent(t *testing.T) {
	q := New(4, 0)
	ctx := context.Background()

	result := make(chan []event.Event, 1)
	go func() {
		events, err := q.Drain(ctx)
		if err == nil {
			result <- events
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, change(7)))

	select {
	case events := <-result:
		assert.Equal(t, []int64{7}, offsets(events))
	case <-time.After(time.Second):
		t.Fatal("Drain did not wake up")
	}
}

func TestQueue_DrainHonoursContext(t *testing.T) {
	q := New(4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Poll(t *testing.T) {
	q := New(4, 0)
	ctx := context.Background()

	// Zero timeout never blocks
	events, err := q.Poll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	start := time.Now()
	events, err = q.Poll(ctx, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, change(1)))
	events, err = q.Poll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, offsets(events))

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(ctx, change(2))
	}()
	events, err = q.Poll(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, offsets(events))
}

func TestQueue_CloseReleasesBlockedProducer(t *testing.T) {
	q := New(1, 0)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, change(0)))

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, change(1))
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the producer")
	}
	assert.True(t, q.Closed())
}

func TestQueue_CloseReleasesBlockedConsumer(t *testing.T) {
	q := New(1, 0)

	done := make(chan error, 1)
	go func() {
		_, err := q.Drain(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the consumer")
	}
}

func TestQueue_DrainAfterCloseReturnsRemaining(t *testing.T) {
	q := New(4, 0)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, change(0)))
	require.NoError(t, q.Enqueue(ctx, change(1)))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(ctx, change(2)), ErrClosed)

	events, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, offsets(events))

	_, err = q.Drain(ctx)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = q.Poll(ctx, 0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestQueue_ConcurrentProducerConsumerKeepsOrder(t *testing.T) {
	const total = 2000
	q := New(16, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); i < total; i++ {
			if err := q.Enqueue(ctx, change(i)); err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
		}
		q.Close()
	}()

	var got []int64
	for {
		events, err := q.Drain(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(events), 5)
		got = append(got, offsets(events)...)
		require.LessOrEqual(t, q.Len(), q.TotalCapacity())
	}
	wg.Wait()

	require.Len(t, got, total)
	for i, off := range got {
		assert.Equal(t, int64(i), off)
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0, 0) })
}
