package gochannel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_DoesNotRetainMessages(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = pub.Close() })

	require.NoError(t, pub.Publish("tasks", message.NewMessage("early", []byte("{}"))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := sub.Subscribe(ctx, "tasks")
	require.NoError(t, err)

	require.NoError(t, pub.Publish("tasks", message.NewMessage("late", []byte("{}"))))

	select {
	case msg := <-messages:
		assert.Equal(t, "late", msg.UUID)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}

	select {
	case msg := <-messages:
		t.Fatalf("unexpected message %s", msg.UUID)
	case <-time.After(100 * time.Millisecond):
	}
}
