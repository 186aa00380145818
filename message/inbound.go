package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
)

const InboundTopic = "inbound-events"

// Dispatcher queues an event on its session. It returns once the event is
// queued, so one slow session does not hold up the handler.
type Dispatcher interface {
	Submit(ctx context.Context, ev entities.InboundEvent) error
}

// InboundPublisher puts user and admin input on the inbound topic.
type InboundPublisher struct {
	publisher message.Publisher
}

func NewInboundPublisher(publisher message.Publisher) InboundPublisher {
	if publisher == nil {
		panic("publisher is nil")
	}

	return InboundPublisher{publisher: publisher}
}

func (p InboundPublisher) Publish(ctx context.Context, ev entities.InboundEvent) error {
	if ev.Header.ID == "" {
		ev.Header = entities.NewEventHeader()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not marshal inbound event: %w", err)
	}

	msg := message.NewMessage(ev.Header.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("session", ev.Session.String())
	msg.Metadata.Set("kind", string(ev.Kind))

	return p.publisher.Publish(InboundTopic, msg)
}

// handledOutcomes are already answered to the user or admin, or cannot get
// better by redelivery, so the message is acked.
var handledOutcomes = []error{
	entities.ErrInvalidInputShape,
	entities.ErrCapacityExceeded,
	entities.ErrStaleCorrelation,
	entities.ErrSessionClosed,
	entities.ErrSessionBusy,
	entities.ErrStoreUnavailable,
}

func isHandledOutcome(err error) bool {
	for _, outcome := range handledOutcomes {
		if errors.Is(err, outcome) {
			return true
		}
	}
	return false
}

func inboundHandler(dispatcher Dispatcher) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var ev entities.InboundEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return entities.Permanent(fmt.Errorf("could not decode inbound event: %w", err))
		}

		err := dispatcher.Submit(msg.Context(), ev)
		if err != nil && isHandledOutcome(err) {
			log.FromContext(msg.Context()).WithError(err).Info("Inbound event not accepted")
			return nil
		}

		return err
	}
}
