package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/gridpilot/gridpilot/pkg/channels/kafka"
	"github.com/gridpilot/gridpilot/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider. "gochannel"
// keeps events in process and is the default for single-runner deployments;
// "kafka" publishes them for external consumers.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "gridpilot")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(pubSub, pubSub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
