package event

import (
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

var marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

// SubscriberFactory returns a subscriber reading as the given consumer group.
type SubscriberFactory func(consumerGroup string) (message.Subscriber, error)

func NewProcessorConfig(newSubscriber SubscriberFactory, watermillLogger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return topicFor(params.EventHandler.NewEvent(), params.EventName)
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return newSubscriber("svc-reservations.events." + params.HandlerName)
		},
		OnHandle: func(params cqrs.EventProcessorOnHandleParams) error {
			ctx := params.Message.Context()
			ctx = log.ToContext(ctx, log.FromContext(ctx).WithFields(logrus.Fields{
				"event_name": params.EventName,
				"handler":    params.Handler.HandlerName(),
			}))

			return params.Handler.Handle(ctx, params.Event)
		},
		Marshaler: marshaler,
		Logger:    watermillLogger,
	}
}
