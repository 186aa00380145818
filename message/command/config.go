package command

import (
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

var marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

type SubscriberFactory func(consumerGroup string) (message.Subscriber, error)

func NewProcessorConfig(newSubscriber SubscriberFactory, watermillLogger watermill.LoggerAdapter) cqrs.CommandProcessorConfig {
	return cqrs.CommandProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.CommandProcessorGenerateSubscribeTopicParams) (string, error) {
			return topicPrefix + params.CommandName, nil
		},
		SubscriberConstructor: func(params cqrs.CommandProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return newSubscriber("svc-reservations.commands." + params.HandlerName)
		},
		OnHandle: func(params cqrs.CommandProcessorOnHandleParams) error {
			ctx := params.Message.Context()
			ctx = log.ToContext(ctx, log.FromContext(ctx).WithField("command_name", params.CommandName))

			return params.Handler.Handle(ctx, params.Command)
		},
		Marshaler: marshaler,
		Logger:    watermillLogger,
	}
}
