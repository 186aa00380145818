package message

import (
	"context"
	"encoding/json"
	"fmt"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

const OutboundTopic = "outbound-messages"

type Transport interface {
	Send(ctx context.Context, msg entities.OutboundMessage) error
}

// OutboundPublisher is the notification sink used in the service: messages
// are queued on the outbound topic and delivered by a separate handler.
type OutboundPublisher struct {
	publisher message.Publisher
}

func NewOutboundPublisher(publisher message.Publisher) OutboundPublisher {
	if publisher == nil {
		panic("publisher is nil")
	}

	return OutboundPublisher{publisher: publisher}
}

func (p OutboundPublisher) Send(ctx context.Context, out entities.OutboundMessage) error {
	if out.Header.ID == "" {
		out.Header = entities.NewEventHeader()
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("could not marshal outbound message: %w", err)
	}

	msg := message.NewMessage(out.Header.ID, payload)
	msg.SetContext(ctx)

	return p.publisher.Publish(OutboundTopic, msg)
}

func deliveryHandler(transport Transport) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var out entities.OutboundMessage
		if err := json.Unmarshal(msg.Payload, &out); err != nil {
			return entities.Permanent(fmt.Errorf("could not decode outbound message: %w", err))
		}

		return transport.Send(msg.Context(), out)
	}
}

// LogTransport only logs outbound messages. It stands in for a chat
// transport when none is configured.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, out entities.OutboundMessage) error {
	log.FromContext(ctx).WithFields(logrus.Fields{
		"chat_id": out.ChatID,
		"text":    out.Text,
		"image":   out.ImageRef,
	}).Info("Outbound message")

	return nil
}
