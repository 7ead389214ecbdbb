package pubsub_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tepache/internal/pubsub"
	"github.com/cory-johannsen/tepache/internal/testutil"
)

func TestRedisBroker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := testutil.NewRedisContainer(t)
	ctx := context.Background()
	b := pubsub.NewRedisBroker(rc.Client, "test", time.Second)

	sub, err := b.Subscribe(ctx, "captures")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "game-sessions")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(ctx, "captures", []byte(fmt.Sprintf("m%d", i))))
	}
	for i := 0; i < 10; i++ {
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "captures", msg.Topic)
			assert.Equal(t, fmt.Sprintf("m%d", i), string(msg.Payload))
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	select {
	case msg := <-other.Messages():
		t.Fatalf("unexpected message on another topic: %q", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
	require.NoError(t, other.Close())
}
