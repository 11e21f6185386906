package cmd

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/channels/gochannel"
	"github.com/salonkit/workflowd/pkg/channels/kafka"
	"github.com/salonkit/workflowd/pkg/eventbus"
)

// NewEventBus connects to the bus as a work queue: processes sharing consumerGroup split
// the messages between them.
func NewEventBus(provider, consumerGroup string, logger *slog.Logger) (eventbus.EventBus, error) {
	return newEventBus(provider, consumerGroup, sarama.OffsetOldest, logger)
}

// NewBroadcastEventBus gives the process its own consumer group starting at the newest
// message, so every replica sees every message published after it started.
func NewBroadcastEventBus(provider, service string, logger *slog.Logger) (eventbus.EventBus, error) {
	return newEventBus(provider, service+"-"+uuid.NewString()[:8], sarama.OffsetNewest, logger)
}

func newEventBus(provider, consumerGroup string, initialOffset int64, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, consumerGroup, initialOffset)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
