package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservations/entities"
	"reservations/message/event"
	"reservations/message/outbox"

	"github.com/jmoiron/sqlx"
)

// MutateShowSeats applies both deltas in one statement. The WHERE clause
// rejects any change that would break a counter invariant, in which case
// ErrCapacityExceeded is returned and nothing is written.
func (r InventoryRepository) MutateShowSeats(
	ctx context.Context,
	showID int,
	deltaAvailable entities.Seats,
	deltaNonConfirmed entities.Seats,
) (entities.Show, error) {
	var show entities.Show

	err := updateInTx(ctx, r.db.Conn, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		show, err = r.mutateSeatsInTx(ctx, tx, showID, deltaAvailable, deltaNonConfirmed)
		return err
	})
	if err != nil {
		return entities.Show{}, err
	}

	return show, nil
}

func (r InventoryRepository) mutateSeatsInTx(
	ctx context.Context,
	tx *sqlx.Tx,
	showID int,
	deltaAvailable entities.Seats,
	deltaNonConfirmed entities.Seats,
) (entities.Show, error) {
	var show entities.Show

	err := tx.GetContext(ctx, &show, `
		UPDATE shows SET
			available_children = available_children + $2,
			available_adult = available_adult + $3,
			non_confirmed_children = non_confirmed_children + $4,
			non_confirmed_adult = non_confirmed_adult + $5
		WHERE
			show_id = $1
			AND available_children + $2 >= 0
			AND available_adult + $3 >= 0
			AND non_confirmed_children + $4 >= 0
			AND non_confirmed_adult + $5 >= 0
			AND available_children + $2 + non_confirmed_children + $4 <= total_children
			AND available_adult + $3 + non_confirmed_adult + $5 <= total_adult
		RETURNING `+showColumns,
		showID,
		deltaAvailable.Children, deltaAvailable.Adult,
		deltaNonConfirmed.Children, deltaNonConfirmed.Adult,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Show{}, r.explainRejectedUpdate(ctx, tx, showID)
	}
	if isErrorCheckViolation(err) {
		return entities.Show{}, entities.ErrCapacityExceeded
	}
	if err != nil {
		return entities.Show{}, fmt.Errorf("could not update seats of show %d: %w", showID, err)
	}

	if err := publishSeatsChanged(ctx, tx, show, deltaAvailable, deltaNonConfirmed); err != nil {
		return entities.Show{}, err
	}

	return show, nil
}

func (r InventoryRepository) explainRejectedUpdate(ctx context.Context, tx *sqlx.Tx, showID int) error {
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM shows WHERE show_id = $1)`, showID)
	if err != nil {
		return fmt.Errorf("could not check show %d: %w", showID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", entities.ErrShowNotFound, showID)
	}

	return entities.ErrCapacityExceeded
}

func publishSeatsChanged(
	ctx context.Context,
	tx *sqlx.Tx,
	show entities.Show,
	deltaAvailable entities.Seats,
	deltaNonConfirmed entities.Seats,
) error {
	outboxPublisher, err := outbox.NewPublisherForTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	err = event.NewBus(outboxPublisher).Publish(ctx, entities.NewShowSeatsChanged(show, deltaAvailable, deltaNonConfirmed))
	if err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}
