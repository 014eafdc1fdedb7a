package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/geoimporter/pkg/channels/gochannel"
	"github.com/dukex/geoimporter/pkg/channels/kafka"
)

const serviceName = "geoimporter"

// NewEventBus returns the task transport. gochannel only reaches subscribers of the same process and
// retains nothing once a task is acked; it is meant for development and single-binary runs.
func NewEventBus(provider string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, serviceName, "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
