package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"reservations/entities"
	"reservations/message/event"
	"reservations/message/outbox"

	"github.com/jmoiron/sqlx"
)

// AppendClientRecord stores the record once; replays with the same RecordID
// are ignored and do not publish a second event.
func (r InventoryRepository) AppendClientRecord(ctx context.Context, record entities.ClientRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not marshal client record: %w", err)
	}

	return updateInTx(ctx, r.db.Conn, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO client_records (record_id, show_id, status, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (record_id) DO NOTHING`,
			record.RecordID, record.ShowID, record.Status, payload, record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("could not save client record: %w", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not get rows affected: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		outboxPublisher, err := outbox.NewPublisherForTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("could not create event bus: %w", err)
		}

		return event.NewBus(outboxPublisher).Publish(ctx, entities.ReservationCompleted_v1{
			Header: entities.NewEventHeaderWithIdempotencyKey(record.RecordID.String()),
			Record: record,
		})
	})
}

func (r InventoryRepository) ListClientRecords(ctx context.Context) ([]entities.ClientRecord, error) {
	var payloads [][]byte
	err := r.db.Conn.SelectContext(ctx, &payloads, `SELECT payload FROM client_records ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("could not list client records: %w", err)
	}

	records := make([]entities.ClientRecord, 0, len(payloads))
	for _, payload := range payloads {
		var record entities.ClientRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("could not unmarshal client record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}
