package outbox

import (
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

// AddForwarderHandler moves committed outbox rows from Postgres to the broker.
func AddForwarderHandler(
	pgSubscriber message.Subscriber,
	publisher message.Publisher,
	router *message.Router,
	logger watermill.LoggerAdapter,
) error {
	_, err := forwarder.NewForwarder(pgSubscriber, publisher, logger, forwarder.Config{
		ForwarderTopic: forwarderTopic,
		Router:         router,
		Middlewares: []message.HandlerMiddleware{
			logForwardedEvent,
		},
	})
	if err != nil {
		return err
	}

	return nil
}

func logForwardedEvent(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := msg.Context()
		if correlationID := msg.Metadata.Get("correlation_id"); correlationID != "" {
			ctx = log.ContextWithCorrelationID(ctx, correlationID)
		}

		log.FromContext(ctx).WithFields(logrus.Fields{
			"message_id": msg.UUID,
			"metadata":   msg.Metadata,
		}).Debug("Forwarding outbox event")

		msg.SetContext(ctx)

		return h(msg)
	}
}
