package event

import (
	"fmt"

	"reservations/entities"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	internalTopicPrefix = "internal-events.svc-reservations."
	externalTopicPrefix = "events."
)

func topicFor(event any, eventName string) (string, error) {
	e, ok := event.(entities.Event)
	if !ok {
		return "", fmt.Errorf("invalid event type: %T doesn't implement entities.Event", event)
	}

	if e.IsInternal() {
		return internalTopicPrefix + eventName, nil
	}
	return externalTopicPrefix + eventName, nil
}

func NewBus(pub message.Publisher) *cqrs.EventBus {
	eventBus, err := cqrs.NewEventBusWithConfig(
		pub,
		cqrs.EventBusConfig{
			GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
				return topicFor(params.Event, params.EventName)
			},
			Marshaler: marshaler,
		},
	)
	if err != nil {
		panic(err)
	}

	return eventBus
}
