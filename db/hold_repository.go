package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservations/entities"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const holdColumns = `
	hold_id, show_id,
	children_seats AS "seats.children",
	adult_seats AS "seats.adult",
	user_id AS "session.user_id",
	chat_id AS "session.chat_id",
	status, created_at, expires_at`

// expiredHoldsBatch bounds how many holds one sweep transaction releases.
const expiredHoldsBatch = 100

// PlaceHold moves the hold's seats from available to non-confirmed and
// records the hold in the same transaction.
func (r InventoryRepository) PlaceHold(ctx context.Context, hold entities.Hold) (entities.Show, error) {
	var show entities.Show

	err := updateInTx(ctx, r.db.Conn, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		show, err = r.mutateSeatsInTx(ctx, tx, hold.ShowID, hold.Seats.Neg(), hold.Seats)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO holds (
				hold_id, show_id, children_seats, adult_seats,
				user_id, chat_id, status, created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			hold.HoldID, hold.ShowID, hold.Seats.Children, hold.Seats.Adult,
			hold.Session.UserID, hold.Session.ChatID, hold.Status, hold.CreatedAt, hold.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("could not save hold %s: %w", hold.HoldID, err)
		}

		return nil
	})
	if err != nil {
		return entities.Show{}, err
	}

	return show, nil
}

// SettleHold moves an active hold to status and applies the matching seat
// deltas. It returns the status the hold had before; anything other than
// active means nothing was written.
func (r InventoryRepository) SettleHold(
	ctx context.Context,
	hold entities.Hold,
	status entities.HoldStatus,
) (entities.HoldStatus, error) {
	var previous entities.HoldStatus

	err := updateInTx(ctx, r.db.Conn, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &previous, `SELECT status FROM holds WHERE hold_id = $1 FOR UPDATE`, hold.HoldID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", entities.ErrHoldNotFound, hold.HoldID)
		}
		if err != nil {
			return fmt.Errorf("could not get hold %s: %w", hold.HoldID, err)
		}
		if previous != entities.HoldStatusActive {
			return nil
		}

		return r.settleInTx(ctx, tx, hold, status, time.Now())
	})
	if err != nil {
		return "", err
	}

	return previous, nil
}

func (r InventoryRepository) settleInTx(
	ctx context.Context,
	tx *sqlx.Tx,
	hold entities.Hold,
	status entities.HoldStatus,
	settledAt time.Time,
) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE holds SET status = $2, settled_at = $3
		WHERE hold_id = $1`,
		hold.HoldID, status, settledAt,
	)
	if err != nil {
		return fmt.Errorf("could not update hold %s: %w", hold.HoldID, err)
	}

	deltaAvailable, deltaNonConfirmed := hold.SettleDeltas(status)
	_, err = r.mutateSeatsInTx(ctx, tx, hold.ShowID, deltaAvailable, deltaNonConfirmed)

	return err
}

// ExtendHold moves the lease of an active hold forward.
func (r InventoryRepository) ExtendHold(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		UPDATE holds SET expires_at = $2
		WHERE hold_id = $1 AND status = 'active' AND expires_at < $2`,
		holdID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("could not extend hold %s: %w", holdID, err)
	}

	return nil
}

// ReleaseExpiredHolds releases active holds whose lease ended at or before
// asOf and gives their seats back. Rows locked by a concurrent settle are
// skipped and picked up by the next sweep.
func (r InventoryRepository) ReleaseExpiredHolds(ctx context.Context, asOf time.Time) ([]entities.Hold, error) {
	var released []entities.Hold

	err := updateInTx(ctx, r.db.Conn, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		released = nil

		err := tx.SelectContext(ctx, &released, `
			SELECT `+holdColumns+`
			FROM holds
			WHERE status = 'active' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			asOf, expiredHoldsBatch,
		)
		if err != nil {
			return fmt.Errorf("could not select expired holds: %w", err)
		}

		for _, hold := range released {
			if err := r.settleInTx(ctx, tx, hold, entities.HoldStatusReleased, asOf); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range released {
		released[i].Status = entities.HoldStatusReleased
	}

	return released, nil
}

// ListActiveHolds returns the holds still waiting to be settled.
func (r InventoryRepository) ListActiveHolds(ctx context.Context) ([]entities.Hold, error) {
	var holds []entities.Hold

	err := r.db.Conn.SelectContext(ctx, &holds, `
		SELECT `+holdColumns+`
		FROM holds
		WHERE status = 'active'
		ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list holds: %w", err)
	}

	return holds, nil
}
