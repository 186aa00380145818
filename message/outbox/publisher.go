package outbox

import (
	"context"
	"fmt"

	"reservations/observability"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
)

// forwarderTopic is the outbox table every event is enveloped into; the
// forwarder unwraps it to the event's real topic.
const forwarderTopic = "reservations_outbox"

// NewPublisherForTx returns a publisher writing into the outbox table within
// tx. Seat and record events become visible only once tx commits.
func NewPublisherForTx(ctx context.Context, tx *sqlx.Tx) (message.Publisher, error) {
	sqlPublisher, err := watermillSQL.NewPublisher(
		tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		log.NewWatermill(log.FromContext(ctx)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox publisher: %w", err)
	}

	var publisher message.Publisher = forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: forwarderTopic,
	})
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}

	return observability.TracingPublisherDecorator{Publisher: publisher}, nil
}
