package message

import (
	"fmt"
	"time"

	"reservations/message/command"
	"reservations/message/event"
	"reservations/message/outbox"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sony/gobreaker"
)

// SubscriberFactory returns a subscriber reading as the given consumer group.
type SubscriberFactory func(consumerGroup string) (message.Subscriber, error)

type RouterDeps struct {
	Publisher     message.Publisher
	NewSubscriber SubscriberFactory
	// PostgresSubscriber reads the outbox table. Nil when the inventory is
	// kept in memory and events go straight to Publisher.
	PostgresSubscriber message.Subscriber

	Dispatcher     Dispatcher
	Transport      Transport
	EventHandler   event.Handler
	CommandHandler command.Handler

	// OutboundPerSecond caps delivery to the chat transport.
	OutboundPerSecond int64

	Logger watermill.LoggerAdapter
}

func NewWatermillRouter(deps RouterDeps) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, err
	}

	if err := useMiddlewares(router, deps.Publisher, deps.Logger); err != nil {
		return nil, err
	}

	if deps.PostgresSubscriber != nil {
		if err := outbox.AddForwarderHandler(deps.PostgresSubscriber, deps.Publisher, router, deps.Logger); err != nil {
			return nil, fmt.Errorf("could not add outbox forwarder: %w", err)
		}
	}

	inboundSub, err := deps.NewSubscriber("svc-reservations.inbound")
	if err != nil {
		return nil, fmt.Errorf("could not create inbound subscriber: %w", err)
	}
	router.AddNoPublisherHandler(
		"DispatchInboundEvent",
		InboundTopic,
		inboundSub,
		inboundHandler(deps.Dispatcher),
	)

	outboundSub, err := deps.NewSubscriber("svc-reservations.outbound")
	if err != nil {
		return nil, fmt.Errorf("could not create outbound subscriber: %w", err)
	}
	delivery := router.AddNoPublisherHandler(
		"DeliverOutboundMessage",
		OutboundTopic,
		outboundSub,
		deliveryHandler(deps.Transport),
	)

	perSecond := deps.OutboundPerSecond
	if perSecond <= 0 {
		perSecond = 25
	}
	breaker := middleware.NewCircuitBreaker(gobreaker.Settings{
		Name:    "chat-transport",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	delivery.AddMiddleware(
		middleware.NewThrottle(perSecond, time.Second).Middleware,
		breaker.Middleware,
	)

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(
		router,
		event.NewProcessorConfig(event.SubscriberFactory(deps.NewSubscriber), deps.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}
	if err := eventProcessor.AddHandlers(deps.EventHandler.EventHandlers()...); err != nil {
		return nil, fmt.Errorf("could not add event handlers: %w", err)
	}

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(
		router,
		command.NewProcessorConfig(command.SubscriberFactory(deps.NewSubscriber), deps.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}
	if err := commandProcessor.AddHandlers(deps.CommandHandler.CommandHandlers()...); err != nil {
		return nil, fmt.Errorf("could not add command handlers: %w", err)
	}

	return router, nil
}
