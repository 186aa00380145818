package outbox

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
)

// NewPostgresSubscriber reads the outbox table. Seat changes feed the
// ledger sheet, so the table is polled more often than the default.
func NewPostgresSubscriber(db *sqlx.DB, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	sub, err := sql.NewSubscriber(db, sql.SubscriberConfig{
		ConsumerGroup:  "svc-reservations.outbox",
		PollInterval:   200 * time.Millisecond,
		SchemaAdapter:  sql.DefaultPostgreSQLSchema{},
		OffsetsAdapter: sql.DefaultPostgreSQLOffsetsAdapter{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create outbox subscriber: %w", err)
	}

	if err := sub.SubscribeInitialize(forwarderTopic); err != nil {
		return nil, fmt.Errorf("could not initialize outbox table: %w", err)
	}

	return sub, nil
}
