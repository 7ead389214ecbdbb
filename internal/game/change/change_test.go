package change

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tepache/internal/pubsub"
)

func TestPublisher_Notify(t *testing.T) {
	broker := pubsub.NewMemoryBroker(4)
	ctx := context.Background()
	sub, err := broker.Subscribe(ctx, Topic)
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(broker)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Notify(ctx, CaptureRecorded, "urn:game:abc", map[string]string{"payload": "B"}))

	select {
	case m := <-sub.Messages():
		c, err := Decode(m.Payload)
		require.NoError(t, err)
		assert.Equal(t, CaptureRecorded, c.Kind)
		assert.Equal(t, "urn:game:abc", c.GameSessionURN)
		assert.True(t, fixed.Equal(c.At))
		assert.JSONEq(t, `{"payload":"B"}`, string(c.Data))
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"kind":"capture.recorded"}`))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, []string{Topic}, Topics())
}
