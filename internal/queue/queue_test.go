package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These tests exercise a real Redis instance and are skipped unless
// TEST_REDIS_URL is set.
func testQueue(t *testing.T, delay, visibility time.Duration) *Queue {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	q, err := New(context.Background(), url, "test-"+t.Name(), delay, visibility)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueReceiveDelete(t *testing.T) {
	q := testQueue(t, 0, time.Second)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "hello"))

	msg, ok, err := q.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", msg.Payload)

	_, ok, err = q.Receive(ctx)
	require.NoError(t, err)
	require.False(t, ok, "message should be hidden during visibility window")

	require.NoError(t, q.Delete(ctx, msg.Handle))
}

func TestVisibilityExpiryRedelivers(t *testing.T) {
	q := testQueue(t, 0, 200*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "retry-me"))

	_, ok, err := q.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(300 * time.Millisecond)
	msg, ok, err := q.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "retry-me", msg.Payload)
}

func TestDelayedVisibility(t *testing.T) {
	q := testQueue(t, 300*time.Millisecond, time.Second)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "later"))

	_, ok, err := q.Receive(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(400 * time.Millisecond)
	msg, ok, err := q.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "later", msg.Payload)
}
