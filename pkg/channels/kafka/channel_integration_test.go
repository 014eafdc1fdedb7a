package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startKafka(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	ctx := context.Background()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	require.NoError(t, err)

	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(container)
		if err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	admin, err := sarama.NewClusterAdmin([]string{broker}, sarama.NewConfig())
	require.NoError(t, err)

	defer func() {
		_ = admin.Close()
	}()

	require.NoError(t, admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}, false))
}

func TestCreateChannel_RoundTrip(t *testing.T) {
	broker := startKafka(t)
	topic := "geoimporter.tasks.test"
	createTopic(t, broker, topic)

	pub, sub, err := CreateChannel(watermill.NopLogger{}, "geoimporter-test", broker)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, pub.Close())
		assert.NoError(t, sub.Close())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	messages, err := sub.Subscribe(ctx, topic)
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"name":"importer.import_resource"}`))
	msg.Metadata.Set(PartitionKeyMetadata, "exec-1")

	require.NoError(t, pub.Publish(topic, msg))

	select {
	case received := <-messages:
		received.Ack()

		assert.Equal(t, msg.UUID, received.UUID)
		assert.Equal(t, "exec-1", received.Metadata.Get(PartitionKeyMetadata))
		assert.JSONEq(t, `{"name":"importer.import_resource"}`, string(received.Payload))
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}
