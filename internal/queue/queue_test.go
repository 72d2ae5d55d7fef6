package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	want := Message{Kind: "booking.created", Body: json.RawMessage(`{"booking_id":"b1"}`)}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-msgs:
		assert.Equal(t, want.Kind, got.Kind)
		assert.JSONEq(t, string(want.Body), string(got.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-msgs:
		assert.False(t, open, "channel must close after cancel")
	case <-time.After(time.Second):
		t.Fatal("consume channel did not close")
	}
}

func TestInMemoryConsumeUnblocksPendingSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	require.NoError(t, q.Publish(ctx, Message{Kind: "a"}))

	// nobody reads the forwarded message; cancel must still end the
	// forwarder instead of leaving it blocked on the send
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-msgs:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("consume channel did not close")
		}
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Kind: "a"}))

	// queue is full, a cancelled context unblocks the publisher
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Publish(ctx, Message{Kind: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}
